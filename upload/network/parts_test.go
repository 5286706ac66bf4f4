package network

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func uris(n int) []string {
	out := make([]string, n)
	for i := range out {
		out[i] = fmt.Sprintf("http://storage.example.com/part-%d", i)
	}
	return out
}

func TestComputeParts_Fixtures(t *testing.T) {
	tests := []struct {
		name     string
		fileSize int64
		info     FileInfo
		want     []Part
	}{
		{
			name:     "1024 bytes over 2 URIs",
			fileSize: 1024,
			info:     FileInfo{UploadURIs: uris(2), MinPartSize: 256, MaxPartSize: 1024},
			want: []Part{
				{StartOffset: 0, EndOffset: 512},
				{StartOffset: 512, EndOffset: 1024},
			},
		},
		{
			name:     "1999 bytes over 4 URIs",
			fileSize: 1999,
			info:     FileInfo{UploadURIs: uris(4), MinPartSize: 256, MaxPartSize: 1024},
			want: []Part{
				{StartOffset: 0, EndOffset: 500},
				{StartOffset: 500, EndOffset: 1000},
				{StartOffset: 1000, EndOffset: 1500},
				{StartOffset: 1500, EndOffset: 1999},
			},
		},
		{
			name:     "smaller than minimum part size",
			fileSize: 100,
			info:     FileInfo{UploadURIs: uris(1), MinPartSize: 256, MaxPartSize: 1024},
			want:     []Part{{StartOffset: 0, EndOffset: 100}},
		},
		{
			name:     "part size clamped up to minimum leaves URIs unused",
			fileSize: 10,
			info:     FileInfo{UploadURIs: uris(5), MinPartSize: 5},
			want: []Part{
				{StartOffset: 0, EndOffset: 5},
				{StartOffset: 5, EndOffset: 10},
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			parts, err := ComputeParts(tt.fileSize, tt.info)
			require.NoError(t, err)
			require.Len(t, parts, len(tt.want))
			for i, want := range tt.want {
				assert.Equal(t, want.StartOffset, parts[i].StartOffset, "part %d start", i)
				assert.Equal(t, want.EndOffset, parts[i].EndOffset, "part %d end", i)
				assert.Equal(t, tt.info.UploadURIs[i], parts[i].URI, "part %d URI", i)
			}
		})
	}
}

func TestComputeParts_Errors(t *testing.T) {
	tests := []struct {
		name     string
		fileSize int64
		info     FileInfo
	}{
		{
			name:     "small file with more than one URI",
			fileSize: 100,
			info:     FileInfo{UploadURIs: uris(2), MinPartSize: 256},
		},
		{
			name:     "not enough URIs for max part size",
			fileSize: 5000,
			info:     FileInfo{UploadURIs: uris(4), MinPartSize: 256, MaxPartSize: 1024},
		},
		{
			name:     "no URIs at all",
			fileSize: 100,
			info:     FileInfo{MinPartSize: 10},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ComputeParts(tt.fileSize, tt.info)
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrInvalidPartOptions)
		})
	}
}

func TestComputeParts_RangesExactlyCoverTheFile(t *testing.T) {
	sizes := []int64{1, 255, 256, 257, 1000, 4096, 99999}
	uriCounts := []int{1, 2, 3, 7}

	for _, fileSize := range sizes {
		for _, uriCount := range uriCounts {
			info := FileInfo{UploadURIs: uris(uriCount), MinPartSize: 256}
			parts, err := ComputeParts(fileSize, info)
			if err != nil {
				// a small file with several URIs is the only legal failure here
				assert.ErrorIs(t, err, ErrInvalidPartOptions)
				assert.True(t, fileSize < info.MinPartSize && uriCount != 1,
					"unexpected failure for size %d with %d URIs", fileSize, uriCount)
				continue
			}

			require.NotEmpty(t, parts)
			var covered int64
			for i, part := range parts {
				assert.Greater(t, part.EndOffset, part.StartOffset)
				assert.Equal(t, covered, part.StartOffset,
					"size %d URIs %d: part %d does not continue where the previous ended", fileSize, uriCount, i)
				covered = part.EndOffset
			}
			assert.Equal(t, fileSize, covered, "size %d URIs %d: union must cover the file", fileSize, uriCount)
		}
	}
}

func TestComputeParts_ZeroByteFile(t *testing.T) {
	parts, err := ComputeParts(0, FileInfo{UploadURIs: uris(1), MinPartSize: 256})
	require.NoError(t, err)
	require.Len(t, parts, 1)
	assert.Equal(t, int64(0), parts[0].Size())
}
