package copytool

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/text/encoding/unicode"

	"github.com/bamsammich/beamsplit/internal/chunk"
	"github.com/bamsammich/beamsplit/internal/engine"
)

const sampleLog = `
-------------------------------------------------------------------------------
   ROBOCOPY     ::     Robust File Copy for Windows
-------------------------------------------------------------------------------

  Started : Monday, 3 March 2025 10:00:00
   Source : C:\Data\Projects\
     Dest : D:\Backup\Projects\

    Files : *.*

  Options : *.* /S /E /DCOPY:DA /COPY:DAT /NP /BYTES /R:3 /W:5

------------------------------------------------------------------------------

               Total    Copied   Skipped  Mismatch    FAILED    Extras
    Dirs :         4         3         1         0         0         0
   Files :        12         9         2         0         1         0
   Bytes :   5242880   4194304   1048576         0         0         0
   Times :   0:00:03   0:00:02                       0:00:00   0:00:00
`

func TestArgs(t *testing.T) {
	r := &Robocopy{ExtraArgs: []string{"/MT:8"}}
	c := chunk.New(`C:\Data\A`, `D:\Backup\A`, 10, 1)

	args := r.Args(c, engine.RetryPolicy{Retries: 3, WaitSeconds: 5}, 41, `C:\logs\x.log`)
	assert.Equal(t, []string{
		`C:\Data\A`, `D:\Backup\A`, "/E",
		"/R:3", "/W:5", "/IPG:41", "/NP", "/BYTES", `/UNILOG:C:\logs\x.log`, "/MT:8",
	}, args)
}

func TestArgs_FilesOnlyNoThrottle(t *testing.T) {
	r := &Robocopy{}
	c := chunk.NewFilesOnly(`C:\Data`, `D:\Backup`, 10, 1)

	args := r.Args(c, engine.RetryPolicy{}, 0, "x.log")
	assert.Equal(t, []string{
		`C:\Data`, `D:\Backup`, chunk.FilesOnlyArg,
		"/R:0", "/W:0", "/NP", "/BYTES", "/UNILOG:x.log",
	}, args)
	assert.NotContains(t, args, "/E")
}

func TestParseSummary(t *testing.T) {
	s, err := ParseSummary(strings.NewReader(sampleLog))
	require.NoError(t, err)
	assert.Equal(t, engine.Summary{
		BytesCopied:  4194304,
		FilesCopied:  9,
		FilesSkipped: 2,
		FilesFailed:  1,
	}, s)
}

func TestParseSummary_Units(t *testing.T) {
	log := "   Files :  3  2  1  0  0  0\n   Bytes :   1.5 m   1.0 m   512 k  0  0  0\n"
	s, err := ParseSummary(strings.NewReader(log))
	require.NoError(t, err)
	assert.Equal(t, int64(1<<20), s.BytesCopied)
	assert.Equal(t, int64(2), s.FilesCopied)
}

func TestParseSummary_Missing(t *testing.T) {
	tests := []struct {
		name string
		log  string
	}{
		{"empty", ""},
		{"header only", "    Files : *.*\n"},
		{"truncated row", "   Files :  3  2\n"},
		{"garbage", "   Bytes :  lots  of  bytes  here  0  0\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, err := ParseSummary(strings.NewReader(tt.log))
			require.NoError(t, err)
			assert.Equal(t, engine.Summary{}, s)
		})
	}
}

func TestParseSummary_LastRowWins(t *testing.T) {
	log := "   Files :  1  1  0  0  0  0\n   Files :  5  4  1  0  0  0\n"
	s, err := ParseSummary(strings.NewReader(log))
	require.NoError(t, err)
	assert.Equal(t, int64(4), s.FilesCopied)
}

func TestReadSummaryFile_UTF16(t *testing.T) {
	enc := unicode.UTF16(unicode.LittleEndian, unicode.UseBOM).NewEncoder()
	data, err := enc.String(sampleLog)
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "chunk.log")
	require.NoError(t, os.WriteFile(path, []byte(data), 0o644))

	s, err := ReadSummaryFile(path)
	require.NoError(t, err)
	assert.Equal(t, int64(9), s.FilesCopied)
	assert.Equal(t, int64(4194304), s.BytesCopied)
}

func TestReadSummaryFile_Missing(t *testing.T) {
	_, err := ReadSummaryFile(filepath.Join(t.TempDir(), "nope.log"))
	require.Error(t, err)
	assert.True(t, os.IsNotExist(err))
}

func TestParseSummary_UnknownJob(t *testing.T) {
	r := &Robocopy{}
	assert.Equal(t, engine.Summary{}, r.ParseSummary(nil))
}
