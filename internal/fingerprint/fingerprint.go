package fingerprint

import (
	"crypto/md5"
	"encoding/hex"
	"io"
	"os"
)

// Sum returns the hex encoded MD5 digest of data. The digest is a dedup key,
// not a security boundary.
func Sum(data []byte) string {
	sum := md5.Sum(data)
	return hex.EncodeToString(sum[:])
}

// SumReader streams r into the same digest as Sum.
func SumReader(r io.Reader) (string, error) {
	h := md5.New()
	if _, err := io.Copy(h, r); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

func SumFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()
	return SumReader(f)
}
