// Package applog 读取进程日志文件的增量片段（log.output 为文件时可用）
package applog

import (
	"errors"
	"io"
	"os"
	"time"
)

const maxChunkBytes int64 = 512 * 1024

// Chunk 一次读取的日志片段；From/To 为字节偏移，End 为文件当前大小。
// 文件被轮转后 since 超过 End，此时从头读取并置 Lost。
type Chunk struct {
	Path      string `json:"path,omitempty"`
	Pid       int    `json:"pid,omitempty"`
	StartedAt string `json:"startedAt,omitempty"`

	From int64  `json:"from"`
	To   int64  `json:"to"`
	End  int64  `json:"end"`
	Lost bool   `json:"lost"`
	Text string `json:"text"`

	Error string `json:"error,omitempty"`
}

// Reader 绑定一个日志文件
type Reader struct {
	path      string
	startedAt time.Time
	maxBytes  int64
}

// NewReader path 为空时 Since 总是返回空片段
func NewReader(path string, startedAt time.Time) *Reader {
	return &Reader{path: path, startedAt: startedAt, maxBytes: maxChunkBytes}
}

func (r *Reader) Since(since int64) Chunk {
	chunk := Chunk{Path: r.path, Pid: os.Getpid()}
	if !r.startedAt.IsZero() {
		chunk.StartedAt = r.startedAt.Format(time.RFC3339Nano)
	}
	if r.path == "" {
		return chunk
	}
	if err := r.read(&chunk, since); err != nil {
		chunk.Error = err.Error()
	}
	return chunk
}

func (r *Reader) read(chunk *Chunk, since int64) error {
	if since < 0 {
		since = 0
	}
	f, err := os.Open(r.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return err
	}
	defer f.Close()

	st, err := f.Stat()
	if err != nil {
		return err
	}
	chunk.End = st.Size()
	chunk.From = since
	if chunk.From > chunk.End {
		chunk.From = 0
		chunk.Lost = true
	}
	chunk.To = chunk.From

	remaining := chunk.End - chunk.From
	if remaining <= 0 {
		return nil
	}
	if _, err := f.Seek(chunk.From, io.SeekStart); err != nil {
		return err
	}
	data, err := io.ReadAll(io.LimitReader(f, min(remaining, r.maxBytes)))
	if err != nil {
		return err
	}
	chunk.To = chunk.From + int64(len(data))
	chunk.Text = string(data)
	return nil
}
