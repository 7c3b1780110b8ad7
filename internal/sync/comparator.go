package sync

import (
	"encoding/hex"
	"time"
)

// mtimeTolerance absorbs coarse timestamp resolution on network filesystems.
const mtimeTolerance = 2 * time.Second

// hasChanged decides whether dst must be rewritten from src. Size is checked first, then
// content digests when both sides carry a plain MD5. Without digests any modification time
// difference beyond the tolerance counts: writes stamp the source time on the destination, so
// a destination edited afterwards no longer matches in either direction.
func hasChanged(src, dst *FileMetadata) (bool, string) {
	if src.Size != dst.Size {
		return true, "size differs"
	}

	if isMD5(src.ETag) && isMD5(dst.ETag) {
		if src.ETag != dst.ETag {
			return true, "content differs"
		}
		return false, ""
	}

	diff := src.LastModified.Sub(dst.LastModified)
	if diff > mtimeTolerance || diff < -mtimeTolerance {
		return true, "modification time differs"
	}
	return false, ""
}

// isMD5 rejects multipart ETags ("<hex>-<parts>") and anything else that is not a plain digest.
func isMD5(etag string) bool {
	if len(etag) != 32 {
		return false
	}
	_, err := hex.DecodeString(etag)
	return err == nil
}
