package table

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"strings"
)

const imageField = "design_image"

var (
	ErrFormClosed   = errors.New("form is not open")
	ErrNoIdentifier = errors.New("edit form has no identifier")
	ErrBadDataURL   = errors.New("malformed data URL")
)

// SubmitResult carries the outcome of a successful submission. ImageErr is
// set when the record was saved but the follow-up image upload failed.
type SubmitResult struct {
	Notice   string `json:"notice,omitempty"`
	ImageErr error  `json:"-"`
}

// Submit validates the form and sends it as a create or update depending on
// its mode. Validation failures return ValidationErrors and leave the form
// open with its values and errors set. Collaborator failures also keep the
// form open. On success the form is cleared and closed.
func (t *Table) Submit(ctx context.Context, form *Form) (SubmitResult, error) {
	if form.Mode == ModeEdit {
		return t.SubmitUpdate(ctx, form)
	}
	return t.SubmitCreate(ctx, form)
}

// SubmitCreate sends the form as a new record. An embedded image cannot be
// uploaded before the record has an identifier, so it is dropped.
func (t *Table) SubmitCreate(ctx context.Context, form *Form) (SubmitResult, error) {
	if !form.Open {
		return SubmitResult{}, ErrFormClosed
	}
	if err := t.check(form); err != nil {
		return SubmitResult{}, err
	}

	payload := t.payload(form.Values)
	image, hadImage := payload[imageField].(string)
	if hadImage {
		payload[imageField] = nil
	}
	if err := t.mutator.Create(ctx, t.entity.Name, payload); err != nil {
		return SubmitResult{}, err
	}

	var res SubmitResult
	if hadImage && isDataURL(image) {
		res.Notice = "Order created successfully. You can edit it later to add the image."
	}
	form.Close()
	return res, nil
}

// SubmitUpdate sends the form's values to the record it was opened for. All
// values are validated, but a form filled through Apply only sends the fields
// it was given. A newly attached image is uploaded after the update succeeds.
func (t *Table) SubmitUpdate(ctx context.Context, form *Form) (SubmitResult, error) {
	if !form.Open {
		return SubmitResult{}, ErrFormClosed
	}
	if form.EditingID == "" {
		return SubmitResult{}, ErrNoIdentifier
	}
	if err := t.check(form); err != nil {
		return SubmitResult{}, err
	}

	payload := t.payload(form.Values)
	if form.changed != nil {
		for k := range payload {
			if _, ok := form.changed[k]; !ok {
				delete(payload, k)
			}
		}
	}
	image, _ := payload[imageField].(string)
	newImage := isDataURL(image)
	if newImage {
		payload[imageField] = nil
	}
	if err := t.mutator.Update(ctx, t.entity.Name, form.EditingID, payload); err != nil {
		return SubmitResult{}, err
	}

	var res SubmitResult
	if newImage && t.images != nil {
		if err := t.uploadDataURL(ctx, form.EditingID, image); err != nil {
			slog.WarnContext(ctx, "Image upload failed after update", "entity", t.entity.Name, "id", form.EditingID, "err", err)
			res.ImageErr = err
			res.Notice = "Order updated but failed to upload image. You can try uploading it again later."
		} else {
			res.Notice = "Order updated and image uploaded successfully"
		}
	}
	form.Close()
	return res, nil
}

// Delete removes a record immediately.
func (t *Table) Delete(ctx context.Context, id string) error {
	if id == "" {
		return ErrNoIdentifier
	}
	return t.mutator.Delete(ctx, t.entity.Name, id)
}

func (t *Table) check(form *Form) error {
	errs := t.Validate(form.Values)
	form.Errors = errs
	if len(errs) > 0 {
		return ValidationErrors(errs)
	}
	return nil
}

// payload copies the submitted values, keeping only keys the schema knows.
func (t *Table) payload(values Record) Record {
	out := make(Record, len(values))
	for k, v := range values {
		if t.entity.HasField(k) {
			out[k] = v
		}
	}
	return out
}

func (t *Table) uploadDataURL(ctx context.Context, id, dataURL string) error {
	raw, err := decodeDataURL(dataURL)
	if err != nil {
		return err
	}
	return t.images.UploadOrderImage(ctx, id, "design_image.jpg", bytes.NewReader(raw))
}

func isDataURL(s string) bool {
	return strings.HasPrefix(s, "data:")
}

// decodeDataURL extracts the payload of a base64 data URL.
func decodeDataURL(s string) ([]byte, error) {
	meta, data, ok := strings.Cut(strings.TrimPrefix(s, "data:"), ",")
	if !ok || !strings.HasSuffix(meta, ";base64") {
		return nil, ErrBadDataURL
	}
	raw, err := base64.StdEncoding.DecodeString(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadDataURL, err)
	}
	return raw, nil
}
