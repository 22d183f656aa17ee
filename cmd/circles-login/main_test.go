package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func Test_getPassword(t *testing.T) {
	tmpDir := t.TempDir()
	pwdFile := filepath.Join(tmpDir, "my.pass")
	require.NoError(t, os.WriteFile(pwdFile, []byte("fromfile\n"), 0o600))

	tests := []struct {
		name     string
		pwdFile  string
		pwdStdin bool
		reader   *bytes.Buffer
		want     string
		wantErr  bool
	}{
		{name: "from file", pwdFile: pwdFile, want: "fromfile"},
		{name: "missing file", pwdFile: filepath.Join(tmpDir, "nope"), wantErr: true},
		{name: "from stdin", pwdStdin: true, reader: bytes.NewBufferString("fromstdin\n"), want: "fromstdin"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reader := tt.reader
			if reader == nil {
				reader = &bytes.Buffer{}
			}
			got, err := getPassword(tt.pwdFile, tt.pwdStdin, reader)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
