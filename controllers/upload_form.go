package controllers

import (
	"errors"
	"io"
	"net/http"
	"os"
	"slices"
)

// maxFieldBytes bounds a single text field of an upload form.
const maxFieldBytes = 64 << 10

// uploadForm is a multipart upload read part by part. Text fields read before a failure are kept,
// so a body cut off inside the file part still carries its nonce.
type uploadForm struct {
	values map[string]string
	file   *os.File
	name   string
	size   int64
}

// readUploadForm streams r's multipart body, keeping the first file found under one of fileFields
// in a temporary file. The returned form is never nil and must be closed.
func readUploadForm(r *http.Request, fileFields ...string) (*uploadForm, error) {
	form := &uploadForm{values: map[string]string{}}
	mr, err := r.MultipartReader()
	if err != nil {
		return form, err
	}
	for {
		part, err := mr.NextPart()
		if errors.Is(err, io.EOF) {
			return form, nil
		}
		if err != nil {
			return form, err
		}
		if err := form.consume(part.FormName(), part.FileName(), part, fileFields); err != nil {
			part.Close()
			return form, err
		}
		part.Close()
	}
}

func (f *uploadForm) consume(field, fileName string, body io.Reader, fileFields []string) error {
	if fileName == "" {
		if _, seen := f.values[field]; seen {
			return nil
		}
		b, err := io.ReadAll(io.LimitReader(body, maxFieldBytes))
		if err != nil {
			return err
		}
		f.values[field] = string(b)
		return nil
	}
	if f.file != nil || !slices.Contains(fileFields, field) {
		return nil
	}
	tmp, err := os.CreateTemp("", "aiep-upload-*")
	if err != nil {
		return err
	}
	f.file = tmp
	f.name = fileName
	f.size, err = io.Copy(tmp, body)
	if err != nil {
		return err
	}
	_, err = tmp.Seek(0, io.SeekStart)
	return err
}

// Close removes the spooled file.
func (f *uploadForm) Close() {
	if f.file == nil {
		return
	}
	_ = f.file.Close()
	_ = os.Remove(f.file.Name())
}
