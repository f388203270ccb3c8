package scanner

import (
	"bytes"
	"context"
	"crypto/sha256"
	"io"
	"os"
)

// hashFile computes the content hash without holding the file in
// memory, for fingerprinting oversized files.
func hashFile(path string) ([32]byte, error) {
	var sum [32]byte
	f, err := os.Open(path)
	if err != nil {
		return sum, err
	}
	defer f.Close()
	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return sum, err
	}
	copy(sum[:], h.Sum(nil))
	return sum, nil
}

// streamChunks reads a file in line-aligned chunks of roughly chunkSize
// bytes and calls emit for each with the 1-based line number of the
// chunk's first line. Peak memory is proportional to the chunk size,
// not the file size. A single line longer than four chunks is emitted
// unaligned rather than buffered without bound.
func streamChunks(ctx context.Context, path string, chunkSize int, emit func(chunk []byte, baseLine int) error) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	buf := make([]byte, chunkSize)
	var carry []byte
	baseLine := 1

	flush := func(chunk []byte) error {
		if len(chunk) == 0 {
			return nil
		}
		if err := emit(chunk, baseLine); err != nil {
			return err
		}
		baseLine += bytes.Count(chunk, []byte{'\n'})
		return nil
	}

	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		n, readErr := f.Read(buf)
		if n > 0 {
			carry = append(carry, buf[:n]...)
			if cut := bytes.LastIndexByte(carry, '\n'); cut >= 0 {
				if err := flush(carry[:cut+1]); err != nil {
					return err
				}
				carry = append(carry[:0], carry[cut+1:]...)
			} else if len(carry) > 4*chunkSize {
				if err := flush(carry); err != nil {
					return err
				}
				carry = carry[:0]
			}
		}
		if readErr == io.EOF {
			return flush(carry)
		}
		if readErr != nil {
			return readErr
		}
	}
}
