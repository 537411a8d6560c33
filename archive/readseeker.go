package archive

import (
	"bufio"
	"io"
)

// bufferedReadSeeker wraps an io.ReadSeeker with a bufio.Reader while
// keeping Seek correct in the presence of buffered-but-unconsumed bytes.
// Grounded on fs/gguf/reader.go's readSeeker.
type bufferedReadSeeker struct {
	rs io.ReadSeeker
	br *bufio.Reader
}

func newBufferedReadSeeker(rs io.ReadSeeker, size int) *bufferedReadSeeker {
	return &bufferedReadSeeker{
		rs: rs,
		br: bufio.NewReaderSize(rs, size),
	}
}

func (b *bufferedReadSeeker) Read(p []byte) (int, error) {
	return b.br.Read(p)
}

func (b *bufferedReadSeeker) Seek(offset int64, whence int) (int64, error) {
	if whence == io.SeekCurrent {
		offset -= int64(b.br.Buffered())
	}
	n, err := b.rs.Seek(offset, whence)
	if err != nil {
		return 0, err
	}
	b.br.Reset(b.rs)
	return n, nil
}
