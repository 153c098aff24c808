package utils

import (
	"crypto/rand"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"github.com/oklog/ulid"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/datazip-inc/filetap/constants"
	"github.com/datazip-inc/filetap/utils/logger"
)

var (
	ulidMutex = sync.Mutex{}
	entropy   = ulid.Monotonic(rand.Reader, 0)
)

// IsValidSubcommand checks if the passed subcommand is supported by the parent command
func IsValidSubcommand(available []*cobra.Command, sub string) bool {
	for _, s := range available {
		if sub == s.Use || sub == s.CalledAs() {
			return true
		}
	}
	return false
}

func ExistInArray[T ~string | int | int8 | int16 | int32 | int64 | float32 | float64](set []T, value T) bool {
	_, found := ArrayContains(set, func(elem T) bool {
		return elem == value
	})

	return found
}

func ArrayContains[T any](set []T, match func(elem T) bool) (int, bool) {
	for idx, elem := range set {
		if match(elem) {
			return idx, true
		}
	}

	return -1, false
}

// returns cond ? a ; b
func Ternary[T any](cond bool, a, b T) T {
	if cond {
		return a
	}
	return b
}

func CheckIfFilesExists(files ...string) error {
	for _, file := range files {
		info, err := os.Stat(file)
		if os.IsNotExist(err) {
			return fmt.Errorf("%s does not exist: %s", file, err)
		}
		if err != nil {
			return fmt.Errorf("failed to stat %s: %s", file, err)
		}
		if info.IsDir() {
			return fmt.Errorf("%s is a directory", file)
		}
	}

	return nil
}

// UnmarshalFile decodes a JSON or YAML file into dest, chosen by extension.
func UnmarshalFile(file string, dest any) error {
	if err := CheckIfFilesExists(file); err != nil {
		return err
	}
	data, err := os.ReadFile(file)
	if err != nil {
		return fmt.Errorf("file not found : %s", err)
	}

	switch strings.ToLower(filepath.Ext(file)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, dest)
	default:
		err = json.Unmarshal(data, dest)
	}
	if err != nil {
		return fmt.Errorf("failed to unmarshal file[%s]: %s", file, err)
	}
	return nil
}

func ULID() string {
	return genULID(time.Now())
}

func genULID(t time.Time) string {
	ulidMutex.Lock()
	defer ulidMutex.Unlock()
	newUlid, err := ulid.New(ulid.Timestamp(t), entropy)
	if err != nil {
		logger.Fatalf("failed to generate ulid: %s", err)
	}
	return newUlid.String()
}

// SpoolToTemp copies r into a fresh temp file under dir and returns it rewound
// to the start. The caller owns the file and must close and remove it.
func SpoolToTemp(dir string, r io.Reader) (*os.File, error) {
	f, err := os.CreateTemp(dir, constants.SpoolFilePrefix+ULID()+"-*")
	if err != nil {
		return nil, fmt.Errorf("failed to create spool file: %s", err)
	}
	if _, err := io.Copy(f, r); err != nil {
		RemoveFile(f)
		return nil, fmt.Errorf("failed to spool stream: %w", err)
	}
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		RemoveFile(f)
		return nil, fmt.Errorf("failed to rewind spool file: %s", err)
	}
	return f, nil
}

// RemoveFile closes f and deletes it from disk, logging failures.
func RemoveFile(f *os.File) {
	name := f.Name()
	_ = f.Close()
	if err := os.Remove(name); err != nil && !os.IsNotExist(err) {
		logger.Warnf("failed to remove temp file %s: %s", name, err)
	}
}
