package speech

import (
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"
)

var generatedPrefixes = []string{"echo_", "llm_response_", "agent_response_"}

// PruneArtifacts 删除 dir 中早于 now-retention 的生成音频，返回删除数量。
// 用户通过 /upload-audio/ 上传的文件不受影响。
func PruneArtifacts(dir string, retention time.Duration, now time.Time) (int, error) {
	if retention <= 0 {
		return 0, nil
	}

	entries, err := os.ReadDir(dir)
	if errors.Is(err, os.ErrNotExist) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("read uploads dir: %w", err)
	}

	cutoff := now.Add(-retention)
	removed := 0
	for _, entry := range entries {
		if entry.IsDir() || !isGeneratedArtifact(entry.Name()) {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		if info.ModTime().After(cutoff) {
			continue
		}
		if err := os.Remove(filepath.Join(dir, entry.Name())); err != nil && !errors.Is(err, os.ErrNotExist) {
			log.Printf("[cleanup] remove %s: %v", entry.Name(), err)
			continue
		}
		removed++
	}
	return removed, nil
}

func isGeneratedArtifact(name string) bool {
	if !strings.HasSuffix(name, ".mp3") {
		return false
	}
	for _, prefix := range generatedPrefixes {
		if strings.HasPrefix(name, prefix) {
			return true
		}
	}
	return false
}
