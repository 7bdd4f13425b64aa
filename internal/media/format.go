package media

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/h2non/filetype"
)

// FormatInfo содержит информацию о формате файла
type FormatInfo struct {
	DetectedMIME      string // MIME тип определенный по содержимому
	DetectedExtension string // Расширение определенное по содержимому
	ClaimedExtension  string // Расширение из имени файла
	IsValid           bool   // Соответствует ли содержимое расширению
	IsSupported       bool   // Можно ли хешировать
	Error             string // Описание проблемы если есть
}

// Форматы, которые умеет декодировать imaging
var supportedImages = map[string]bool{
	"image/jpeg": true,
	"image/png":  true,
	"image/gif":  true,
	"image/bmp":  true,
	"image/tiff": true,
}

// DetectFormat определяет формат по magic bytes
func DetectFormat(head []byte) *FormatInfo {
	info := &FormatInfo{}

	kind, err := filetype.Match(head)
	if err != nil {
		info.Error = "failed to detect file type"
		return info
	}
	if kind == filetype.Unknown {
		info.Error = "unknown file format"
		return info
	}

	info.DetectedMIME = kind.MIME.Value
	info.DetectedExtension = "." + kind.Extension
	info.IsValid = true
	info.IsSupported = supportedImages[info.DetectedMIME]
	if !info.IsSupported {
		info.Error = fmt.Sprintf("unsupported format: %s", info.DetectedMIME)
	}
	return info
}

// DetectFileFormat определяет реальный формат файла и сверяет его с расширением
func DetectFileFormat(path string) (*FormatInfo, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open file: %w", err)
	}
	defer file.Close()

	// Для определения типа достаточно заголовка
	head := make([]byte, 512)
	n, err := file.Read(head)
	if err != nil && n == 0 {
		return nil, fmt.Errorf("failed to read file header: %w", err)
	}

	info := DetectFormat(head[:n])
	info.ClaimedExtension = strings.ToLower(filepath.Ext(path))
	if !info.IsValid {
		return info, nil
	}

	if !sameExtension(info.ClaimedExtension, info.DetectedExtension) {
		info.IsValid = false
		info.Error = fmt.Sprintf("extension mismatch: file claims %s but contains %s (%s)",
			info.ClaimedExtension, info.DetectedExtension, info.DetectedMIME)
	}
	return info, nil
}

// sameExtension учитывает синонимы вроде .jpeg/.jpg и .tiff/.tif
func sameExtension(claimed, detected string) bool {
	aliases := map[string]string{".jpeg": ".jpg", ".tiff": ".tif"}
	if a, ok := aliases[claimed]; ok {
		claimed = a
	}
	if a, ok := aliases[detected]; ok {
		detected = a
	}
	return strings.EqualFold(claimed, detected)
}

// ValidateImageFile проверяет файл перед хешированием
func ValidateImageFile(path string) error {
	info, err := DetectFileFormat(path)
	if err != nil {
		return err
	}
	if !info.IsValid {
		return fmt.Errorf("invalid file: %s", info.Error)
	}
	if !info.IsSupported {
		return fmt.Errorf("unsupported format: %s", info.Error)
	}
	return nil
}
