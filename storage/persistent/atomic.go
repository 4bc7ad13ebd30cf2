package persistent

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/polarsignals/columnfort/storage"
)

// writeFileAtomic implements the durability protocol from spec.md §4.4:
// write into <target>.tmp, fsync it, rename to target (POSIX-atomic on the
// same filesystem), deleting the .tmp on any error path.
func writeFileAtomic(target string, data []byte, perm os.FileMode) (err error) {
	tmp := target + ".tmp"

	f, err := os.OpenFile(tmp, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, perm)
	if err != nil {
		return fmt.Errorf("atomic write: create %s: %w", tmp, err)
	}
	defer func() {
		if err != nil {
			_ = os.Remove(tmp)
		}
	}()

	if _, err = f.Write(data); err != nil {
		_ = f.Close()
		return fmt.Errorf("atomic write: write %s: %w", tmp, err)
	}
	if err = f.Sync(); err != nil {
		_ = f.Close()
		return fmt.Errorf("atomic write: fsync %s: %w", tmp, err)
	}
	if err = f.Close(); err != nil {
		return fmt.Errorf("atomic write: close %s: %w", tmp, err)
	}
	if err = os.Rename(tmp, target); err != nil {
		return fmt.Errorf("atomic write: rename %s -> %s: %w", tmp, target, err)
	}
	return nil
}

// removeOrphanTmps deletes any lingering *.tmp files in dir (spec.md §4.4
// startup protocol, step (a)).
func removeOrphanTmps(dir string, logOrphan func(name string)) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		if len(name) > 4 && name[len(name)-4:] == ".tmp" {
			if logOrphan != nil {
				logOrphan(name)
			}
			_ = os.Remove(dir + string(os.PathSeparator) + name)
		}
	}
	return nil
}

// removeUncommittedBlockFiles deletes any col_*_block_*.dat/.meta file in
// dir whose block id is not present in tm's block index for its column
// (spec.md scenario S5: a crash between landing block files and renaming
// metadata.bin leaves fully-written but uncommitted block files behind).
func removeUncommittedBlockFiles(dir string, tm *storage.TableMetadata, logOrphan func(name string)) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	committed := make(map[[2]uint64]bool)
	for cid, blocks := range tm.Blocks {
		for _, m := range blocks {
			committed[[2]uint64{cid, m.BlockID}] = true
		}
	}
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		cid, bid, _, ok := parseBlockFileName(e.Name())
		if !ok {
			continue
		}
		if committed[[2]uint64{cid, bid}] {
			continue
		}
		if logOrphan != nil {
			logOrphan(e.Name())
		}
		_ = os.Remove(filepath.Join(dir, e.Name()))
		_ = os.Remove(filepath.Join(dir, fmt.Sprintf("col_%d_block_%d.meta", cid, bid)))
	}
	return nil
}
