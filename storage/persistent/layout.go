// Package persistent implements the durable ColumnStore (spec.md §4.4): a
// per-table on-disk directory of per-column block files plus a metadata
// index, written with an atomic write-then-rename protocol so a crash
// between any two syscalls never leaves a reader-visible partial write.
package persistent

import (
	"fmt"
	"path/filepath"
	"strconv"
	"strings"
)

func tableDirName(tableID uint64) string {
	return fmt.Sprintf("table_%d", tableID)
}

func tableDir(dataDir string, tableID uint64) string {
	return filepath.Join(dataDir, tableDirName(tableID))
}

func metadataPath(dataDir string, tableID uint64) string {
	return filepath.Join(tableDir(dataDir, tableID), "metadata.bin")
}

func blockDataPath(dataDir string, tableID, columnID, blockID uint64) string {
	return filepath.Join(tableDir(dataDir, tableID), fmt.Sprintf("col_%d_block_%d.dat", columnID, blockID))
}

func blockMetaPath(dataDir string, tableID, columnID, blockID uint64) string {
	return filepath.Join(tableDir(dataDir, tableID), fmt.Sprintf("col_%d_block_%d.meta", columnID, blockID))
}

// parseBlockFileName extracts the column id, block id and extension
// ("dat" or "meta") from a "col_<cid>_block_<bid>.<ext>" file name.
func parseBlockFileName(name string) (columnID, blockID uint64, ext string, ok bool) {
	var dotExt string
	switch {
	case strings.HasSuffix(name, ".dat"):
		dotExt = ".dat"
	case strings.HasSuffix(name, ".meta"):
		dotExt = ".meta"
	default:
		return 0, 0, "", false
	}
	base := strings.TrimSuffix(name, dotExt)
	parts := strings.Split(base, "_")
	if len(parts) != 4 || parts[0] != "col" || parts[2] != "block" {
		return 0, 0, "", false
	}
	cid, err := strconv.ParseUint(parts[1], 10, 64)
	if err != nil {
		return 0, 0, "", false
	}
	bid, err := strconv.ParseUint(parts[3], 10, 64)
	if err != nil {
		return 0, 0, "", false
	}
	return cid, bid, strings.TrimPrefix(dotExt, "."), true
}
