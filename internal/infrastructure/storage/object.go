package storage

import (
	"bytes"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"sync"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"

	"freelancehub/internal/domain/service"
)

const sniffLen = 3072

// objectPath is where an attachment of a conversation is stored.
func objectPath(conversationID, fileName, contentType string) string {
	return fmt.Sprintf("conversations/%s/attachments/%s%s", conversationID, uuid.NewString(), extension(fileName, contentType))
}

func extension(fileName, contentType string) string {
	if ext := strings.ToLower(filepath.Ext(fileName)); ext != "" && len(ext) <= 8 {
		return ext
	}
	if m := mimetype.Lookup(contentType); m != nil && m.Extension() != "" {
		return m.Extension()
	}
	return ".bin"
}

// sniff fills in a missing or generic content type from the first bytes of
// the body. The returned reader still yields the whole body.
func sniff(contentType string, body io.Reader) (string, io.Reader, error) {
	if contentType != "" && contentType != "application/octet-stream" {
		return contentType, body, nil
	}
	head := make([]byte, sniffLen)
	n, err := io.ReadFull(body, head)
	if err != nil && err != io.EOF && err != io.ErrUnexpectedEOF {
		return "", nil, err
	}
	head = head[:n]
	detected := mimetype.Detect(head).String()
	if i := strings.Index(detected, ";"); i > 0 {
		detected = detected[:i]
	}
	return detected, io.MultiReader(bytes.NewReader(head), body), nil
}

// progressCounter turns byte counts into whole percentages of total.
type progressCounter struct {
	mu       sync.Mutex
	total    int64
	done     int64
	report   service.ProgressFunc
	reported int
}

func newProgressCounter(total int64, report service.ProgressFunc) *progressCounter {
	if report == nil {
		report = func(int) {}
	}
	return &progressCounter{total: total, report: report, reported: -1}
}

// set records the absolute number of bytes transferred.
func (p *progressCounter) set(n int64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.done = n
	p.emitLocked()
}

func (p *progressCounter) add(n int64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.done += n
	p.emitLocked()
}

func (p *progressCounter) complete() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.reported < 100 {
		p.reported = 100
		p.report(100)
	}
}

func (p *progressCounter) emitLocked() {
	if p.total <= 0 {
		return
	}
	percent := int(p.done * 100 / p.total)
	if percent > 100 {
		percent = 100
	}
	// 100 is reserved for a confirmed upload
	if percent >= 100 || percent <= p.reported {
		return
	}
	p.reported = percent
	p.report(percent)
}

// progressReader reports reads against a counter. It is seekable so SDKs
// can rewind the body for signing and retries.
type progressReader struct {
	r       io.ReadSeeker
	counter *progressCounter
}

func (p *progressReader) Read(b []byte) (int, error) {
	n, err := p.r.Read(b)
	p.counter.add(int64(n))
	return n, err
}

func (p *progressReader) Seek(offset int64, whence int) (int64, error) {
	pos, err := p.r.Seek(offset, whence)
	if err == nil {
		p.counter.mu.Lock()
		p.counter.done = pos
		p.counter.mu.Unlock()
	}
	return pos, err
}
