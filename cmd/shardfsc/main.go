package main

import (
	"fmt"
	"os"
	"reflect"

	"github.com/spf13/cobra"

	"github.com/shardfs/shardfs/build"
	"github.com/shardfs/shardfs/modules/client"
)

// exit codes, inspired by sysexits.h
const (
	exitCodeGeneral = 1
	exitCodeUsage   = 64
)

var (
	// coordinatorAddr and clientID are filled out by cobra from persistent
	// flags before any command's Run is invoked.
	coordinatorAddr string
	clientID        string
	useProxy        bool

	// shardClient is built in rootCmd's PersistentPreRun, once the flags
	// above are known.
	shardClient *client.Client

	rootCmd *cobra.Command
)

// die prints its arguments to stderr, then exits with the general error code.
func die(args ...interface{}) {
	fmt.Fprintln(os.Stderr, args...)
	os.Exit(exitCodeGeneral)
}

// wrap wraps a generic command with a check that it was passed the correct
// number of arguments. The wrapped function must take only strings.
func wrap(fn interface{}) func(*cobra.Command, []string) {
	fnVal, fnType := reflect.ValueOf(fn), reflect.TypeOf(fn)
	if fnType.Kind() != reflect.Func {
		panic("wrapped function has wrong type signature")
	}
	for i := 0; i < fnType.NumIn(); i++ {
		if fnType.In(i).Kind() != reflect.String {
			panic("wrapped function has wrong type signature")
		}
	}
	return func(cmd *cobra.Command, args []string) {
		if len(args) != fnType.NumIn() {
			cmd.UsageFunc()(cmd)
			os.Exit(exitCodeUsage)
		}
		argVals := make([]reflect.Value, fnType.NumIn())
		for i := range args {
			argVals[i] = reflect.ValueOf(args[i])
		}
		fnVal.Call(argVals)
	}
}

func versioncmd() {
	fmt.Println("ShardFS Client v" + build.Version)
}

func main() {
	root := &cobra.Command{
		Use:   os.Args[0],
		Short: "ShardFS Client v" + build.Version,
		Long:  "ShardFS Client v" + build.Version,
		Run: func(cmd *cobra.Command, args []string) {
			cmd.UsageFunc()(cmd)
		},
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			shardClient = client.New(coordinatorAddr, clientID)
			shardClient.UseProxy = useProxy
		},
	}
	rootCmd = root

	root.PersistentFlags().StringVarP(&coordinatorAddr, "coordinator-addr", "", "http://localhost:8480", "base URL of the coordinator")
	root.PersistentFlags().StringVarP(&clientID, "client-id", "", "shardfsc", "identifier sent as X-Client-ID on every request")
	root.PersistentFlags().BoolVarP(&useProxy, "proxy", "", false, "route chunk downloads through the coordinator instead of addressing workers directly (uploads always go to workers directly)")

	root.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Long:  "Print version information about the ShardFS client",
		Run:   wrap(versioncmd),
	})

	root.AddCommand(uploadCmd)
	root.AddCommand(downloadCmd)
	root.AddCommand(filesCmd)
	filesCmd.AddCommand(filesLsCmd)
	filesCmd.AddCommand(filesStatCmd)
	filesCmd.AddCommand(filesRmCmd)
	root.AddCommand(nodesCmd)
	nodesCmd.AddCommand(nodesLsCmd)
	nodesCmd.AddCommand(nodesGetCmd)
	root.AddCommand(healthCmd)

	if err := root.Execute(); err != nil {
		os.Exit(exitCodeUsage)
	}
}
