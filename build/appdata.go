package build

import (
	"encoding/hex"
	"io/ioutil"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/uplo-tech/fastrand"
)

// APIPassword returns the daemon's API password, either from the
// environment variable or from a password file stored alongside the data
// directory. If neither is set, a password file is generated and that
// password is returned.
func APIPassword() (string, error) {
	if pw := os.Getenv(apiPasswordEnvVar); pw != "" {
		return pw, nil
	}

	path := apiPasswordFilePath()
	pwFile, err := ioutil.ReadFile(path)
	if err == nil {
		return strings.TrimSpace(string(pwFile)), nil
	} else if !os.IsNotExist(err) {
		return "", err
	}

	return createAPIPasswordFile()
}

// DataDir returns the data directory either from the environment variable
// or the platform default.
func DataDir() string {
	dir := os.Getenv(dataDirEnvVar)
	if dir == "" {
		dir = defaultDataDir()
	}
	return dir
}

func apiPasswordFilePath() string {
	return filepath.Join(DataDir(), "apipassword")
}

// createAPIPasswordFile creates an api password file in the data directory
// and returns the newly created password.
func createAPIPasswordFile() (string, error) {
	dir := DataDir()
	if err := os.MkdirAll(dir, 0700); err != nil {
		return "", err
	}
	if err := os.Chmod(dir, 0700); err != nil {
		return "", err
	}
	pw := hex.EncodeToString(fastrand.Bytes(16))
	if err := ioutil.WriteFile(apiPasswordFilePath(), []byte(pw+"\n"), 0600); err != nil {
		return "", err
	}
	return pw, nil
}

// defaultDataDir returns the default data directory for shardfs daemons.
//
// Linux:   $HOME/.shardfs
// MacOS:   $HOME/Library/Application Support/ShardFS
// Windows: %LOCALAPPDATA%\ShardFS
func defaultDataDir() string {
	switch runtime.GOOS {
	case "windows":
		return filepath.Join(os.Getenv("LOCALAPPDATA"), "ShardFS")
	case "darwin":
		return filepath.Join(os.Getenv("HOME"), "Library", "Application Support", "ShardFS")
	default:
		return filepath.Join(os.Getenv("HOME"), ".shardfs")
	}
}
