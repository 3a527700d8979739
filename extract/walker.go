package extract

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"sync"
	"sync/atomic"

	"docsift/config"
)

// FileWalker handles concurrent document discovery with type filtering
type FileWalker struct {
	maxWorkers int
}

// NewFileWalker creates a new file walker
func NewFileWalker() *FileWalker {
	return &FileWalker{maxWorkers: runtime.NumCPU() * 2}
}

// isValidFileType checks if a file extension is one we can extract
func (fw *FileWalker) isValidFileType(path string) bool {
	return config.IsDocumentFile(filepath.Base(path))
}

// shouldSkipDir determines if we should skip a directory
func (fw *FileWalker) shouldSkipDir(path string, d fs.DirEntry, root string) bool {
	if path == root {
		return false
	}
	return config.ShouldSkipDirectory(d.Name())
}

// CountFiles counts all matching files under root
func (fw *FileWalker) CountFiles(root string) (int64, error) {
	var count int64

	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil // Skip files we can't access
		}
		if d.IsDir() {
			if fw.shouldSkipDir(path, d, root) {
				return filepath.SkipDir
			}
			return nil
		}
		if fw.isValidFileType(path) {
			atomic.AddInt64(&count, 1)
		}
		return nil
	})

	return count, err
}

// FindFiles expands the given paths into document files. Directories are
// walked; plain file arguments are kept even when their type is
// unsupported so the caller can report them. The result is sorted.
func (fw *FileWalker) FindFiles(ctx context.Context, paths ...string) ([]string, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	fileChan := make(chan string, 1000)
	var walkErr error
	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		defer close(fileChan)

		for _, root := range paths {
			info, err := os.Stat(root)
			if err != nil {
				walkErr = err
				return
			}
			if !info.IsDir() {
				select {
				case fileChan <- root:
				case <-ctx.Done():
					return
				}
				continue
			}

			filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
				if err != nil {
					return nil // Skip files we can't access
				}

				select {
				case <-ctx.Done():
					return ctx.Err()
				default:
				}

				if d.IsDir() {
					if fw.shouldSkipDir(path, d, root) {
						return filepath.SkipDir
					}
					return nil
				}
				if config.IsHiddenFile(d.Name()) || !fw.isValidFileType(path) {
					return nil
				}
				select {
				case fileChan <- path:
				case <-ctx.Done():
					return ctx.Err()
				}
				return nil
			})
		}
	}()

	var files []string
	var mu sync.Mutex

	for i := 0; i < fw.maxWorkers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			localFiles := make([]string, 0, 100)

			for file := range fileChan {
				localFiles = append(localFiles, file)

				// Batch append to reduce lock contention
				if len(localFiles) >= 100 {
					mu.Lock()
					files = append(files, localFiles...)
					mu.Unlock()
					localFiles = localFiles[:0]
				}
			}

			if len(localFiles) > 0 {
				mu.Lock()
				files = append(files, localFiles...)
				mu.Unlock()
			}
		}()
	}

	wg.Wait()
	if walkErr != nil {
		return nil, walkErr
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	sort.Strings(files)
	return files, nil
}
