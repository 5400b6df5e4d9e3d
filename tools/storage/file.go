package storage

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"gitlab.com/mediauz/video-pipeline/config"
	"gitlab.com/mediauz/video-pipeline/pkg/logger"
)

// FileOperationsI - local filesystem primitives the pipeline relies on
type FileOperationsI interface {
	EnsureDir(dir string) error
	Move(src, dst string) error
	Remove(path string) error
	RemoveDir(dir string) error
	FileSize(path string) (int64, error)
}

type fileStorage struct {
	log logger.Logger
	cfg *config.Config
}

func NewFileStorage(cfg *config.Config, log logger.Logger) FileOperationsI {
	return &fileStorage{
		cfg: cfg,
		log: log,
	}
}

func (f *fileStorage) EnsureDir(dir string) error {
	return os.MkdirAll(dir, 0o755)
}

// Move renames when possible and falls back to copy+delete across devices
func (f *fileStorage) Move(src, dst string) error {
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return err
	}

	if err := os.Rename(src, dst); err == nil {
		return nil
	}

	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}

	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return fmt.Errorf("cannot copy %s to %s: %w", src, dst, err)
	}
	if err := out.Close(); err != nil {
		return err
	}

	return os.Remove(src)
}

func (f *fileStorage) Remove(path string) error {
	err := os.Remove(path)
	if os.IsNotExist(err) {
		return nil
	}
	return err
}

func (f *fileStorage) RemoveDir(dir string) error {
	f.log.Debug("removing directory", logger.String("dir", dir))
	return os.RemoveAll(dir)
}

func (f *fileStorage) FileSize(path string) (int64, error) {
	info, err := os.Stat(path)
	if err != nil {
		return 0, err
	}
	return info.Size(), nil
}

// ReadFileLines loads a text file as a slice of lines without terminators
func ReadFileLines(filename string) ([]string, error) {
	file, err := os.Open(filename)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)

	var lines []string
	for scanner.Scan() {
		lines = append(lines, scanner.Text())
	}

	if err := scanner.Err(); err != nil {
		return nil, err
	}

	return lines, nil
}

// WriteLinesToFile writes every line followed by a newline
func WriteLinesToFile(lines []string, filename string) error {
	content := ""
	for _, line := range lines {
		content += line + "\n"
	}

	return os.WriteFile(filename, []byte(content), 0o644)
}
