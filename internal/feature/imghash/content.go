package imghash

import (
	"fmt"
	"io"
	"os"

	"github.com/cespare/xxhash/v2"
)

// ContentHash returns a 128-bit hex fingerprint of the file's bytes: one
// xxh64 pass over the content and a second over each chunk reversed, so a
// single 64-bit collision does not produce a false exact-duplicate.
func ContentHash(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	fwd := xxhash.New()
	rev := xxhash.New()
	buf := make([]byte, 4096)
	for {
		n, err := f.Read(buf)
		if n > 0 {
			_, _ = fwd.Write(buf[:n])
			_, _ = rev.Write(reverse(buf[:n]))
		}
		if err == io.EOF {
			break
		}
		if err != nil {
			return "", fmt.Errorf("read %s: %w", path, err)
		}
	}
	return fmt.Sprintf("%016x%016x", fwd.Sum64(), rev.Sum64()), nil
}

func reverse(b []byte) []byte {
	out := make([]byte, len(b))
	for i, v := range b {
		out[len(b)-1-i] = v
	}
	return out
}
