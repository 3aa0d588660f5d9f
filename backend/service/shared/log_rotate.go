package shared

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// RotateLogFile 把非空的旧日志改名为带时间戳的文件，并清理超过 retain 的轮转文件。
//
//	/var/log/lattice.log -> /var/log/lattice-20260116-235959.log
func RotateLogFile(path string, retain time.Duration) error {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil
	}

	dir := filepath.Dir(path)
	ext := filepath.Ext(path)
	stem := strings.TrimSuffix(filepath.Base(path), ext)
	if stem == "" {
		return nil
	}

	if st, err := os.Stat(path); err == nil && st.Size() > 0 {
		if err := os.Rename(path, rotatedName(dir, stem, ext, time.Now())); err != nil {
			return err
		}
	}

	if retain <= 0 {
		return nil
	}
	return pruneRotated(dir, stem, ext, time.Now().Add(-retain))
}

// rotatedName 同一秒内多次轮转时追加序号
func rotatedName(dir, stem, ext string, now time.Time) string {
	ts := now.Format("20060102-150405")
	name := filepath.Join(dir, fmt.Sprintf("%s-%s%s", stem, ts, ext))
	for i := 1; ; i++ {
		if _, err := os.Stat(name); os.IsNotExist(err) {
			return name
		}
		name = filepath.Join(dir, fmt.Sprintf("%s-%s-%d%s", stem, ts, i, ext))
	}
}

func pruneRotated(dir, stem, ext string, cutoff time.Time) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return err
	}
	prefix := stem + "-"
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasPrefix(name, prefix) || !strings.HasSuffix(name, ext) {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		if info.ModTime().Before(cutoff) {
			_ = os.Remove(filepath.Join(dir, name))
		}
	}
	return nil
}
