package blobstore

import (
	"fmt"
	"strings"
	"time"

	"github.com/ortokids/ortokids/portal-module/internal/domain/model"
)

// BuildKey строит ключ объекта снимка:
// orders/{orderID}/{slot}_{timestamp}.{ext}
// timestamp — миллисекунды Unix, поэтому повторная съёмка слота
// всегда даёт новый ключ, а старый объект остаётся сироте до GC.
func BuildKey(orderID string, slot model.ImageSlot, ext string, now time.Time) string {
	ext = strings.TrimPrefix(ext, ".")
	return fmt.Sprintf("orders/%s/%s_%d.%s", orderID, slot, now.UnixMilli(), ext)
}

// ParseKey извлекает orderID и слот из ключа объекта.
func ParseKey(key string) (orderID string, slot model.ImageSlot, ok bool) {
	parts := strings.Split(key, "/")
	if len(parts) != 3 || parts[0] != "orders" {
		return "", "", false
	}
	name := parts[2]
	idx := strings.IndexByte(name, '_')
	if idx != 1 {
		return "", "", false
	}
	s, err := model.ParseSlot(name[:idx])
	if err != nil {
		return "", "", false
	}
	return parts[1], s, true
}

// ExtFromContentType подбирает расширение файла по MIME-типу снимка.
func ExtFromContentType(contentType string) string {
	switch contentType {
	case "image/jpeg":
		return "jpg"
	case "image/png":
		return "png"
	case "image/webp":
		return "webp"
	case "image/heic":
		return "heic"
	default:
		return "bin"
	}
}
