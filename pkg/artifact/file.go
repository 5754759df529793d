package artifact

import (
	"os"
	"path/filepath"

	"k8s.io/klog/v2"

	"github.com/japaniel/dictbuild/pkg/dicterr"
)

// Write encodes a and replaces path atomically: the bytes go to a temporary file in
// the same directory, which is synced and renamed over path. On failure path is left
// untouched and the temporary file is removed.
func Write(path string, a *Artifact, opts Options) (Header, error) {
	data, h, err := Encode(a, opts)
	if err != nil {
		return Header{}, err
	}
	if err := writeAtomic(path, data); err != nil {
		return Header{}, err
	}
	klog.V(1).InfoS("wrote artifact", "path", path, "bytes", len(data), "compressed", h.Compressed())
	return h, nil
}

func writeAtomic(path string, data []byte) (err error) {
	dir := filepath.Dir(path)
	f, err := os.CreateTemp(dir, "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return dicterr.IO("create temp file", err)
	}
	tmp := f.Name()
	defer func() {
		if err != nil {
			_ = f.Close()
			_ = os.Remove(tmp)
		}
	}()
	if _, err = f.Write(data); err != nil {
		return dicterr.IO("write "+tmp, err)
	}
	if err = f.Sync(); err != nil {
		return dicterr.IO("sync "+tmp, err)
	}
	if err = f.Close(); err != nil {
		return dicterr.IO("close "+tmp, err)
	}
	if err = os.Chmod(tmp, 0o644); err != nil {
		return dicterr.IO("chmod "+tmp, err)
	}
	if err = os.Rename(tmp, path); err != nil {
		return dicterr.IO("rename to "+path, err)
	}
	return nil
}

// Load decodes the artifact stored at path.
func Load(path string) (*Artifact, Header, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, Header{}, dicterr.IO("open artifact", err)
	}
	return Decode(data)
}
