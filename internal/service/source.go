package service

import (
	"archive/zip"
	"bytes"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/gzip"

	"github.com/levonm80/socapp/internal/util"
)

// ErrBadArchive marks an upload whose container cannot be opened at all.
// It fails the whole job; a single unreadable zip member does not.
var ErrBadArchive = errors.New("unreadable archive")

// source is one logical log file extracted from an upload.
type source struct {
	name string
	data []byte
}

// logMemberExts are the zip member extensions treated as log data.
var logMemberExts = map[string]bool{
	".csv": true,
	".txt": true,
	".log": true,
}

// extractSources unpacks an upload into its log file sources. Zip archives
// are detected by the PK magic or a .zip extension, gzip by its magic or a
// .gz extension; anything else is taken as a plain log file.
func (s *IngestService) extractSources(filename string, data []byte) ([]source, error) {
	switch {
	case isZip(filename, data):
		return s.extractZip(filename, data)
	case isGzip(filename, data):
		return extractGzip(filename, data)
	default:
		return []source{{name: filename, data: data}}, nil
	}
}

func isZip(filename string, data []byte) bool {
	if len(data) >= 2 && data[0] == 'P' && data[1] == 'K' {
		return true
	}
	return strings.EqualFold(filepath.Ext(filename), ".zip")
}

func isGzip(filename string, data []byte) bool {
	if len(data) >= 2 && data[0] == 0x1f && data[1] == 0x8b {
		return true
	}
	return strings.EqualFold(filepath.Ext(filename), ".gz")
}

// extractZip reads every log-typed member. Members that fail to decompress
// are skipped with a warning so one corrupt member does not sink the rest
// of the archive.
func (s *IngestService) extractZip(filename string, data []byte) ([]source, error) {
	reader, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadArchive, err)
	}

	var sources []source
	for _, member := range reader.File {
		if member.FileInfo().IsDir() {
			continue
		}
		if !logMemberExts[strings.ToLower(filepath.Ext(member.Name))] {
			continue
		}

		rc, err := member.Open()
		if err != nil {
			s.logger.Warn("skipping unreadable zip member",
				util.String("archive", filename),
				util.String("member", member.Name),
				util.ErrorField(err),
			)
			continue
		}
		content, err := io.ReadAll(rc)
		rc.Close()
		if err != nil {
			s.logger.Warn("skipping corrupt zip member",
				util.String("archive", filename),
				util.String("member", member.Name),
				util.ErrorField(err),
			)
			continue
		}
		sources = append(sources, source{name: member.Name, data: content})
	}
	return sources, nil
}

func extractGzip(filename string, data []byte) ([]source, error) {
	gz, err := gzip.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadArchive, err)
	}
	defer gz.Close()

	content, err := io.ReadAll(gz)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadArchive, err)
	}
	return []source{{name: strings.TrimSuffix(filename, ".gz"), data: content}}, nil
}
