package cleanup

import (
	"log"
	"os"
	"path/filepath"
	"time"
)

// Scheduler periodically removes aged files from the watched directories:
// uploaded sources that were long since segmented, and partial segment
// debris left behind by failed ffmpeg runs.
type Scheduler struct {
	dirs     []string
	interval time.Duration
	maxAge   time.Duration
	stopChan chan struct{}
}

func NewScheduler(dirs []string, interval, maxAge time.Duration) *Scheduler {
	return &Scheduler{
		dirs:     dirs,
		interval: interval,
		maxAge:   maxAge,
		stopChan: make(chan struct{}),
	}
}

// Start runs one immediate sweep and then sweeps on the interval.
func (s *Scheduler) Start() {
	s.sweep()

	ticker := time.NewTicker(s.interval)
	go func() {
		for {
			select {
			case <-ticker.C:
				s.sweep()
			case <-s.stopChan:
				ticker.Stop()
				return
			}
		}
	}()

	log.Printf("Cleanup scheduler started (interval: %s, max age: %s)", s.interval, s.maxAge)
}

// Stop halts the periodic sweeps.
func (s *Scheduler) Stop() {
	close(s.stopChan)
	log.Println("Cleanup scheduler stopped")
}

func (s *Scheduler) sweep() {
	now := time.Now()
	var deletedCount int
	var deletedSize int64

	for _, dir := range s.dirs {
		entries, err := os.ReadDir(dir)
		if err != nil {
			log.Printf("Cleanup: cannot read %s: %v", dir, err)
			continue
		}

		for _, entry := range entries {
			if entry.IsDir() {
				continue
			}
			info, err := entry.Info()
			if err != nil {
				continue
			}
			age := now.Sub(info.ModTime())
			if age <= s.maxAge {
				continue
			}

			path := filepath.Join(dir, entry.Name())
			if err := os.Remove(path); err != nil {
				log.Printf("Cleanup: failed to delete %s: %v", path, err)
				continue
			}
			deletedCount++
			deletedSize += info.Size()
		}
	}

	if deletedCount > 0 {
		log.Printf("Cleanup complete: %d files deleted, %.2fMB freed",
			deletedCount, float64(deletedSize)/(1024*1024))
	}
}
