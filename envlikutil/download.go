/*
Copyright © 2019 the envlik authors.
This file is part of envlik.

envlik is free software: you can redistribute it and/or modify
it under the terms of the GNU General Public License as published by
the Free Software Foundation, either version 3 of the License, or
(at your option) any later version.

envlik is distributed in the hope that it will be useful,
but WITHOUT ANY WARRANTY; without even the implied warranty of
MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
GNU General Public License for more details.

You should have received a copy of the GNU General Public License
along with envlik.  If not, see <http://www.gnu.org/licenses/>.
*/

package envlikutil

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
)

// maybeDownload checks if the input is an existing file locally.
// If not, it checks if the file is a URL or a blob storage location.
// If so, it downloads the file and returns the path to the downloaded file.
// Otherwise, it returns path unchanged.
// c, if not nil, is a channel across which error
// messages will be sent.
func maybeDownload(ctx context.Context, path string, c chan string) string {
	// Check if local file exists. If it does, return the given path.
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		return path
	}

	var r io.ReadCloser
	var err error
	switch {
	case strings.HasPrefix(path, "http://") || strings.HasPrefix(path, "https://"):
		r, err = openHTTP(ctx, path)
	case isBlob(path):
		p, _ := parseBlobPath(path)
		r, err = openBlob(ctx, p)
	default:
		return path
	}
	if err != nil {
		send(c, err.Error())
		return path
	}
	defer r.Close()
	local, err := saveTemp(r, path)
	if err != nil {
		send(c, err.Error())
		return path
	}
	return local
}

func send(c chan string, msg string) {
	if c != nil {
		c <- msg
	}
}

// openHTTP starts downloading a file from the specified URL.
func openHTTP(ctx context.Context, path string) (io.ReadCloser, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, path, nil)
	if err != nil {
		return nil, fmt.Errorf("envlik: downloading %s: %v", path, err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("envlik: downloading %s: %v", path, err)
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, fmt.Errorf("envlik: downloading %s: %s", path, resp.Status)
	}
	return resp.Body, nil
}

// openBlob opens the specified file in blob storage for reading.
func openBlob(ctx context.Context, p blobPath) (io.ReadCloser, error) {
	bucket, err := p.openBucket(ctx)
	if err != nil {
		return nil, err
	}
	r, err := bucket.NewReader(ctx, p.key, nil)
	if err != nil {
		bucket.Close()
		return nil, fmt.Errorf("envlik: downloading %s: %v", p, err)
	}
	return &blobReader{ReadCloser: r, close: bucket.Close}, nil
}

// blobReader closes its bucket after the reader.
type blobReader struct {
	io.ReadCloser
	close func() error
}

func (r *blobReader) Close() error {
	err := r.ReadCloser.Close()
	if err2 := r.close(); err == nil {
		err = err2
	}
	return err
}

// saveTemp copies r into a new temporary directory, in a file with the
// same base name as path.
func saveTemp(r io.Reader, path string) (string, error) {
	dir, err := os.MkdirTemp("", "envlik")
	if err != nil {
		return "", fmt.Errorf("envlik: failed creating temporary download directory: %v", err)
	}
	name := filepath.Join(dir, filepath.Base(path))
	w, err := os.Create(name)
	if err != nil {
		return "", fmt.Errorf("envlik: failed creating file for download: %v", err)
	}
	if _, err = io.Copy(w, r); err != nil {
		w.Close()
		return "", fmt.Errorf("envlik: downloading %s: %v", path, err)
	}
	return name, w.Close()
}
