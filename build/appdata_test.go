package build

import (
	"os"
	"testing"
)

// TestAPIPassword tests getting and setting the API password.
func TestAPIPassword(t *testing.T) {
	if err := os.Unsetenv(apiPasswordEnvVar); err != nil {
		t.Error(err)
	}

	pw, err := APIPassword()
	if err != nil {
		t.Error(err)
	}
	if pw == "" {
		t.Error("password should not be blank")
	}

	newPW := "abc123"
	if err := os.Setenv(apiPasswordEnvVar, newPW); err != nil {
		t.Error(err)
	}
	pw, err = APIPassword()
	if err != nil {
		t.Error(err)
	}
	if pw != newPW {
		t.Errorf("expected password %v, got %v", newPW, pw)
	}
}

// TestDataDir tests getting and setting the data directory.
func TestDataDir(t *testing.T) {
	if err := os.Unsetenv(dataDirEnvVar); err != nil {
		t.Error(err)
	}
	if dir := DataDir(); dir != defaultDataDir() {
		t.Errorf("expected default data dir %v, got %v", defaultDataDir(), dir)
	}

	newDir := "foo/bar"
	if err := os.Setenv(dataDirEnvVar, newDir); err != nil {
		t.Error(err)
	}
	if dir := DataDir(); dir != newDir {
		t.Errorf("expected data dir %v, got %v", newDir, dir)
	}
}
