package docker

import (
	"archive/tar"
	"bytes"
	"io"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTarFile_IncludesParents(t *testing.T) {
	r, err := tarFile("/home/user/workspace/notes.txt", []byte("hello"))
	require.NoError(t, err)

	tr := tar.NewReader(r)
	var names []string
	var content []byte
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			break
		}
		require.NoError(t, err)
		names = append(names, hdr.Name)
		if hdr.Typeflag == tar.TypeReg {
			content, err = io.ReadAll(tr)
			require.NoError(t, err)
		}
	}

	assert.Equal(t, []string{"home/", "home/user/", "home/user/workspace/", "home/user/workspace/notes.txt"}, names)
	assert.Equal(t, "hello", string(content))
}

func TestTarFile_RejectsRelativeAndRoot(t *testing.T) {
	_, err := tarFile("notes.txt", nil)
	assert.Error(t, err)
	_, err = tarFile("/", nil)
	assert.Error(t, err)
}

func TestTarFile_CleansPath(t *testing.T) {
	r, err := tarFile("/a/../b//c.txt", []byte("x"))
	require.NoError(t, err)
	data, err := untarFile(r)
	require.NoError(t, err)
	assert.Equal(t, "x", string(data))
}

func TestUntarFile_RoundTripEmpty(t *testing.T) {
	r, err := tarFile("/w/empty", []byte{})
	require.NoError(t, err)
	data, err := untarFile(r)
	require.NoError(t, err)
	assert.Empty(t, data)
}

func TestUntarFile_NoRegularFile(t *testing.T) {
	var buf bytes.Buffer
	tw := tar.NewWriter(&buf)
	require.NoError(t, tw.WriteHeader(&tar.Header{Typeflag: tar.TypeDir, Name: "dir/", Mode: 0o755}))
	require.NoError(t, tw.Close())

	_, err := untarFile(&buf)
	assert.ErrorIs(t, err, ErrFileNotFound)
}

func TestLabelDeadline(t *testing.T) {
	now := time.Now().Truncate(time.Second)
	got := labelDeadline(map[string]string{labelExpiresAt: strconv.FormatInt(now.Unix(), 10)})
	assert.True(t, now.Equal(got))

	assert.True(t, labelDeadline(map[string]string{}).IsZero())
	assert.True(t, labelDeadline(map[string]string{labelExpiresAt: "soon"}).IsZero())
}

func TestShortID(t *testing.T) {
	assert.Equal(t, "0123456789ab", shortID("0123456789abcdef"))
	assert.Equal(t, "abc", shortID("abc"))
}
