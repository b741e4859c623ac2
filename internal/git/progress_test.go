package git

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseProgress(t *testing.T) {
	tests := []struct {
		line string
		want TransferProgress
		ok   bool
	}{
		{
			line: "Receiving objects:  45% (450/1000), 1.50 MiB | 2.00 MiB/s",
			want: TransferProgress{Stage: "Receiving objects", Objects: 450, Total: 1000, Bytes: 1572864},
			ok:   true,
		},
		{
			line: "remote: Counting objects: 100% (3/3), done.",
			want: TransferProgress{Stage: "Counting objects", Objects: 3, Total: 3},
			ok:   true,
		},
		{
			line: "Enumerating objects: 12, done.",
			want: TransferProgress{Stage: "Enumerating objects", Objects: 12},
			ok:   true,
		},
		{
			line: "Writing objects: 100% (5/5), 512 bytes | 512.00 KiB/s, done.",
			want: TransferProgress{Stage: "Writing objects", Objects: 5, Total: 5, Bytes: 512},
			ok:   true,
		},
		{line: "Total 10 (delta 2), reused 0 (delta 0), pack-reused 0"},
		{line: "remote: Create a pull request for 'x' on GitHub by visiting:"},
		{line: ""},
	}
	for _, tt := range tests {
		t.Run(tt.line, func(t *testing.T) {
			got, ok := ParseProgress(tt.line)
			require.Equal(t, tt.ok, ok)
			require.Equal(t, tt.want, got)
		})
	}
}

func TestProgressWriter(t *testing.T) {
	t.Run("splits carriage return redraws", func(t *testing.T) {
		var got []TransferProgress
		w := newProgressWriter(func(p TransferProgress) error {
			got = append(got, p)
			return nil
		}, nil)

		_, err := w.Write([]byte("Counting objects:  50% (1/2)\rCounting obj"))
		require.NoError(t, err)
		_, err = w.Write([]byte("ects: 100% (2/2), done.\n"))
		require.NoError(t, err)
		_, err = w.Write([]byte("Compressing objects: 100% (4/4)"))
		require.NoError(t, err)
		w.Flush()

		require.Len(t, got, 3)
		require.Equal(t, uint64(1), got[0].Objects)
		require.Equal(t, uint64(2), got[1].Objects)
		require.Equal(t, "Compressing objects", got[2].Stage)
	})

	t.Run("callback error cancels the transfer", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		stop := errors.New("stop")
		w := newProgressWriter(func(TransferProgress) error { return stop }, cancel)

		_, err := w.Write([]byte("Receiving objects:  10% (1/10)\n"))
		require.ErrorIs(t, err, stop)
		require.ErrorIs(t, w.Aborted(), stop)
		require.Error(t, ctx.Err())

		_, err = w.Write([]byte("Receiving objects:  20% (2/10)\n"))
		require.ErrorIs(t, err, stop, "writes after an abort keep failing")
	})
}
