package table

import (
	"context"
	"encoding/base64"
	"errors"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"shankh-dashboard/internal/metadata"
)

type fakeLookups map[string][]map[string]any

func (f fakeLookups) Get(_ context.Context, entity string) []map[string]any {
	return f[entity]
}

type call struct {
	op, entity, id string
	rec            Record
}

type fakeMutator struct {
	calls []call
	err   error
}

func (m *fakeMutator) Create(_ context.Context, entity string, rec Record) error {
	m.calls = append(m.calls, call{op: "create", entity: entity, rec: rec})
	return m.err
}

func (m *fakeMutator) Update(_ context.Context, entity, id string, rec Record) error {
	m.calls = append(m.calls, call{op: "update", entity: entity, id: id, rec: rec})
	return m.err
}

func (m *fakeMutator) Delete(_ context.Context, entity, id string) error {
	m.calls = append(m.calls, call{op: "delete", entity: entity, id: id})
	return m.err
}

type fakeUploader struct {
	id, filename string
	body         []byte
	err          error
}

func (u *fakeUploader) UploadOrderImage(_ context.Context, id, filename string, r io.Reader) error {
	u.id, u.filename = id, filename
	u.body, _ = io.ReadAll(r)
	return u.err
}

func registry(t *testing.T) *metadata.Registry {
	t.Helper()
	reg := metadata.NewRegistry()
	require.NoError(t, metadata.LoadDefault(reg))
	return reg
}

func lookupData() fakeLookups {
	return fakeLookups{
		"clients": {
			{"client_id": 1.0, "name": "Asha", "business_name": "Asha Textiles"},
			{"client_id": 2.0, "name": "Ravi", "business_name": ""},
		},
		"client_orders": {
			{"order_id": 10.0, "design_description": "Floral Kurta", "client_id": 1.0},
			{"order_id": 11.0, "design_description": "Plain Shirt", "client_id": 99.0},
		},
		"lots": {
			{"lot_id": 7.0, "current_stage": "Cutting"},
		},
		"workers": {
			{"worker_id": 3.0, "name": "Meena", "skill_type": "Welding"},
		},
	}
}

func newTable(t *testing.T, entity string, m Mutator) *Table {
	t.Helper()
	reg := registry(t)
	e := reg.GetEntity(entity)
	require.NotNil(t, e)
	return New(e, reg, lookupData(), m)
}

func messages(errs []ValidationError) []string {
	out := make([]string, len(errs))
	for i, e := range errs {
		out[i] = e.Message
	}
	return out
}

func TestValidate_NumUnitsBounds(t *testing.T) {
	tbl := newTable(t, "client_orders", &fakeMutator{})
	base := Record{"client_id": 1.0, "design_description": "Kurta", "deadline": "2024-03-01"}

	rec := Record{"num_units": 0.0}
	for k, v := range base {
		rec[k] = v
	}
	errs := tbl.Validate(rec)
	require.Len(t, errs, 1)
	assert.Equal(t, "num_units", errs[0].Field)
	assert.Equal(t, "Number of Units must be at least 1", errs[0].Message)

	rec["num_units"] = "5"
	assert.Empty(t, tbl.Validate(rec))

	rec["num_units"] = "five"
	assert.Equal(t, []string{"Please enter a valid number"}, messages(tbl.Validate(rec)))

	delete(rec, "num_units")
	assert.Equal(t, []string{"Number of Units is required"}, messages(tbl.Validate(rec)))
}

func TestValidate_RequiredInSchemaOrder(t *testing.T) {
	tbl := newTable(t, "clients", &fakeMutator{})
	errs := tbl.Validate(Record{"name": "  "})
	assert.Equal(t, []string{"Client Name is required", "Business Name is required"}, messages(errs))
	assert.Equal(t, "name", errs[0].Field)
}

func TestValidate_Email(t *testing.T) {
	tbl := newTable(t, "clients", &fakeMutator{})
	base := Record{"name": "A", "business_name": "B"}

	for _, bad := range []string{"not-an-email", "asha@localhost", "asha @example.com", "@example.com", "asha@example."} {
		base["email"] = bad
		assert.Equal(t, []string{"Please enter a valid email address"}, messages(tbl.Validate(base)), bad)
	}

	for _, good := range []string{"asha@example.com", "asha.t+orders@mail.example.co.uk"} {
		base["email"] = good
		assert.Empty(t, tbl.Validate(base), good)
	}
}

func TestValidate_Phone(t *testing.T) {
	tbl := newTable(t, "clients", &fakeMutator{})
	cases := []struct {
		phone string
		want  []string
	}{
		{"0300-1234567", nil},
		{"(0300) 123 4567", nil},
		{"92123456789", nil},
		{"+92123456789", []string{"Phone number should not start with +"}},
		{"1234567890", []string{"Phone number must be exactly 11 digits"}},
		{"+923001234567", []string{"Phone number should not start with +"}},
		{"12345", []string{"Phone number must be exactly 11 digits"}},
		{"0300abc4567", []string{"Phone number must contain only digits"}},
	}
	for _, tc := range cases {
		t.Run(tc.phone, func(t *testing.T) {
			errs := tbl.Validate(Record{"name": "A", "business_name": "B", "phone_number": tc.phone})
			if tc.want == nil {
				assert.Empty(t, errs)
				return
			}
			assert.Equal(t, tc.want, messages(errs))
		})
	}
}

func TestValidate_MaxBound(t *testing.T) {
	tbl := newTable(t, "lots", &fakeMutator{})
	errs := tbl.Validate(Record{
		"order_id": 10.0, "lot_status": "Pending", "start_date": "2024-01-01", "progress_percent": 120.0,
	})
	assert.Equal(t, []string{"Progress % must be at most 100"}, messages(errs))
}

func TestValidate_ZeroIsNotEmpty(t *testing.T) {
	tbl := newTable(t, "workers", &fakeMutator{})
	errs := tbl.Validate(Record{"name": "Meena", "rate_per_hour": 0.0, "skill_type": "Welding"})
	assert.Empty(t, errs)
}

func TestSearch(t *testing.T) {
	tbl := newTable(t, "client_orders", &fakeMutator{})
	res := tbl.Resolve(context.Background())
	records := []Record{
		{"order_id": 10.0, "client_id": 1.0, "design_description": "Floral", "deadline": "2024-01-15", "total_estimated_cost": 1500.0},
		{"order_id": 11.0, "client_id": 2.0, "design_description": "Plain", "deadline": "2024-02-20", "total_estimated_cost": 99.0},
	}

	byID := func(rs []Record) []any {
		var out []any
		for _, r := range rs {
			out = append(out, r["order_id"])
		}
		return out
	}

	assert.Len(t, tbl.Search(res, records, ""), 2)
	assert.Equal(t, []any{10.0}, byID(tbl.Search(res, records, "asha")), "lookup label")
	assert.Equal(t, []any{10.0}, byID(tbl.Search(res, records, "1/15/2024")), "formatted date")
	assert.Equal(t, []any{10.0}, byID(tbl.Search(res, records, "$1,500")), "formatted currency")
	assert.Equal(t, []any{11.0}, byID(tbl.Search(res, records, "PLAIN")), "case-insensitive raw")
	assert.Empty(t, tbl.Search(res, records, "nothing matches"))
}

func TestSearch_WhitespaceIsATerm(t *testing.T) {
	tbl := newTable(t, "client_orders", &fakeMutator{})
	res := tbl.Resolve(context.Background())
	records := []Record{
		{"order_id": 10.0, "design_description": "Floral"},
		{"order_id": 11.0, "design_description": "Two  tone"},
	}

	assert.Empty(t, tbl.Search(res, records, "   "))
	got := tbl.Search(res, records, "  ")
	require.Len(t, got, 1)
	assert.Equal(t, 11.0, got[0]["order_id"])
}

func TestResolutionDisplay(t *testing.T) {
	reg := registry(t)
	res := NewResolution(reg, lookupData())

	field := func(entity, name string) metadata.Field {
		f := reg.GetEntity(entity).GetField(name)
		require.NotNil(t, f)
		return *f
	}

	assert.Equal(t, "Asha - Asha Textiles", res.Display(1.0, field("client_orders", "client_id")))
	assert.Equal(t, "Ravi", res.Display("2", field("client_orders", "client_id")), "no secondary")
	assert.Equal(t, "Floral Kurta (Asha)", res.Display(10.0, field("lots", "order_id")))
	assert.Equal(t, "Plain Shirt (Unknown Client)", res.Display(11.0, field("lots", "order_id")))
	assert.Equal(t, "Lot #7 - Cutting", res.Display(7.0, field("inventory", "lot_id")))
	assert.Equal(t, "Meena (Welding)", res.Display(3.0, field("lot_workers", "worker_id")))

	assert.Equal(t, 42.0, res.Display(42.0, field("lot_workers", "worker_id")), "miss returns raw value")
	assert.Nil(t, res.Display(nil, field("lot_workers", "worker_id")))
	assert.Equal(t, "x", res.Display("x", field("clients", "name")), "non-lookup field")

	custom := metadata.Field{Name: "thing_id", Type: metadata.TypeLookup,
		Lookup: &metadata.LookupRef{Entity: "things", DisplayField: "title", SecondaryField: "kind"}}
	res2 := NewResolution(nil, map[string][]map[string]any{"things": {{"thing_id": 1.0, "title": "Box", "kind": "small"}}})
	assert.Equal(t, "Box - small", res2.Display(1.0, custom), "default composition")
}

func TestIDForLabel(t *testing.T) {
	reg := registry(t)
	res := NewResolution(reg, lookupData())
	f := *reg.GetEntity("client_orders").GetField("client_id")

	id, ok := res.IDForLabel(f, "Asha - Asha Textiles")
	require.True(t, ok)
	assert.Equal(t, 1.0, id)

	id, ok = res.IDForLabel(f, "2")
	require.True(t, ok)
	assert.Equal(t, 2.0, id)

	_, ok = res.IDForLabel(f, "Nobody")
	assert.False(t, ok)
}

func TestFormatCell(t *testing.T) {
	reg := registry(t)
	res := NewResolution(reg, lookupData())
	orders := reg.GetEntity("client_orders")
	f := func(name string) metadata.Field { return *orders.GetField(name) }

	assert.Equal(t, "-", res.FormatCell(nil, f("color")).Text)
	assert.Equal(t, "$1,500", res.FormatCell(1500.0, f("total_estimated_cost")).Text)
	assert.Equal(t, "1/15/2024", res.FormatCell("2024-01-15", f("deadline")).Text)
	assert.Equal(t, "Asha - Asha Textiles", res.FormatCell(1.0, f("client_id")).Text)

	status := res.FormatCell("In Progress", f("order_status"))
	assert.Equal(t, ToneOrange, status.Tone)
	assert.Equal(t, ToneGray, res.FormatCell("Archived", f("order_status")).Tone)

	img := res.FormatCell("uploads/a.jpg", f("design_image"))
	assert.Equal(t, "/api/uploads/a.jpg", img.Href)
	assert.Equal(t, "https://cdn/x.png", res.FormatCell("https://cdn/x.png", f("design_image")).Href)
}

func TestRender_IsolatesFailingRow(t *testing.T) {
	tbl := newTable(t, "client_orders", &fakeMutator{})
	records := []Record{
		{"order_id": 1.0, "design_description": "ok"},
		{"order_id": 2.0, "client_id": 1.0},
		{"order_id": 3.0, "design_description": "also ok"},
	}

	// A nil resolution panics only when a lookup value needs resolving.
	rows := tbl.Render(context.Background(), nil, records)
	require.Len(t, rows, 3)
	assert.Empty(t, rows[0].Error)
	assert.Len(t, rows[0].Cells, len(tbl.Entity().Fields))
	assert.Equal(t, "Unable to render row", rows[1].Error)
	assert.Empty(t, rows[1].Cells)
	assert.Equal(t, "2", rows[1].ID)
	assert.Empty(t, rows[2].Error)
}

func TestWidgetFor(t *testing.T) {
	reg := registry(t)
	widget := func(entity, name string) Widget {
		return WidgetFor(*reg.GetEntity(entity).GetField(name))
	}
	assert.Equal(t, WidgetLookup, widget("client_orders", "client_id"))
	assert.Equal(t, WidgetImage, widget("client_orders", "design_image"))
	assert.Equal(t, WidgetSelect, widget("client_orders", "order_status"))
	assert.Equal(t, WidgetSelect, widget("workers", "skill_type"))
	assert.Equal(t, WidgetTextarea, widget("lots", "notes"))
	assert.Equal(t, WidgetDate, widget("client_orders", "deadline"))
	assert.Equal(t, WidgetNumber, widget("client_orders", "total_estimated_cost"))
	assert.Equal(t, WidgetText, widget("client_orders", "color"))
	assert.Equal(t, []string{"Debit", "Credit"}, Choices("transaction_type"))
}

func TestDescribe(t *testing.T) {
	tbl := newTable(t, "client_orders", &fakeMutator{})
	form := tbl.NewForm()
	form.Values["num_units"] = 0.0
	form.Errors = []ValidationError{{Field: "num_units", Message: "Number of Units must be at least 1"}}

	descs := tbl.Describe(context.Background(), form, nil)
	var keys []string
	for _, d := range descs {
		keys = append(keys, d.Key)
		if d.Key == "num_units" {
			require.NotNil(t, d.Min)
			assert.Equal(t, 1.0, *d.Min)
			assert.Equal(t, []string{"Number of Units must be at least 1"}, d.Errors)
		}
	}
	assert.NotContains(t, keys, "order_id")
	assert.Contains(t, keys, "client_id")
}

func validOrder() Record {
	return Record{"client_id": 1.0, "design_description": "Kurta", "num_units": 5.0, "deadline": "2024-03-01"}
}

func TestSubmitCreate(t *testing.T) {
	m := &fakeMutator{}
	tbl := newTable(t, "client_orders", m)

	form := tbl.NewForm()
	form.Values = validOrder()
	form.Values["unknown_key"] = "dropped"
	res, err := tbl.Submit(context.Background(), form)
	require.NoError(t, err)
	assert.Empty(t, res.Notice)

	require.Len(t, m.calls, 1)
	assert.Equal(t, "create", m.calls[0].op)
	assert.Equal(t, 5.0, m.calls[0].rec["num_units"])
	assert.NotContains(t, m.calls[0].rec, "unknown_key")
	assert.False(t, form.Open)
	assert.Empty(t, form.Values)
}

func TestSubmitCreate_ValidationKeepsForm(t *testing.T) {
	m := &fakeMutator{}
	tbl := newTable(t, "client_orders", m)

	form := tbl.NewForm()
	form.Values = validOrder()
	form.Values["num_units"] = 0.0
	_, err := tbl.Submit(context.Background(), form)

	var verrs ValidationErrors
	require.ErrorAs(t, err, &verrs)
	assert.Equal(t, "Number of Units must be at least 1", verrs[0].Message)
	assert.Empty(t, m.calls)
	assert.True(t, form.Open)
	assert.Equal(t, 0.0, form.Values["num_units"])
	assert.Len(t, form.Errors, 1)
}

func TestSubmitCreate_CollaboratorFailureKeepsForm(t *testing.T) {
	m := &fakeMutator{err: errors.New("HTTP error! status: 500")}
	tbl := newTable(t, "client_orders", m)

	form := tbl.NewForm()
	form.Values = validOrder()
	_, err := tbl.Submit(context.Background(), form)
	require.Error(t, err)
	assert.True(t, form.Open)
	assert.Equal(t, "Kurta", form.Values["design_description"])
}

func TestSubmitCreate_DropsImage(t *testing.T) {
	m := &fakeMutator{}
	tbl := newTable(t, "client_orders", m)

	form := tbl.NewForm()
	form.Values = validOrder()
	form.Values["design_image"] = "data:image/jpeg;base64,AAAA"
	res, err := tbl.Submit(context.Background(), form)
	require.NoError(t, err)
	assert.Nil(t, m.calls[0].rec["design_image"])
	assert.Contains(t, res.Notice, "edit it later")
}

func TestSubmitUpdate_UploadsImageAfterUpdate(t *testing.T) {
	m := &fakeMutator{}
	up := &fakeUploader{}
	tbl := newTable(t, "client_orders", m).WithImageUploader(up)

	rec := validOrder()
	rec["order_id"] = 10.0
	form := tbl.EditForm(rec)
	assert.Equal(t, "10", form.EditingID)
	form.Values["design_image"] = "data:image/jpeg;base64," + base64.StdEncoding.EncodeToString([]byte("jpeg-bytes"))

	res, err := tbl.Submit(context.Background(), form)
	require.NoError(t, err)
	require.Len(t, m.calls, 1)
	assert.Equal(t, "update", m.calls[0].op)
	assert.Equal(t, "10", m.calls[0].id)
	assert.Nil(t, m.calls[0].rec["design_image"])

	assert.Equal(t, "10", up.id)
	assert.Equal(t, "design_image.jpg", up.filename)
	assert.Equal(t, []byte("jpeg-bytes"), up.body)
	assert.NoError(t, res.ImageErr)
	assert.False(t, form.Open)
}

func TestSubmitUpdate_ImageFailureDoesNotFailUpdate(t *testing.T) {
	m := &fakeMutator{}
	up := &fakeUploader{err: errors.New("too large")}
	tbl := newTable(t, "client_orders", m).WithImageUploader(up)

	rec := validOrder()
	rec["order_id"] = 10.0
	form := tbl.EditForm(rec)
	form.Values["design_image"] = "data:image/jpeg;base64,AAAA"

	res, err := tbl.Submit(context.Background(), form)
	require.NoError(t, err)
	require.Error(t, res.ImageErr)
	assert.Contains(t, res.Notice, "failed to upload image")
	assert.Len(t, m.calls, 1)
}

func TestSubmitUpdate_AppliedFormSendsOnlyChanges(t *testing.T) {
	m := &fakeMutator{}
	tbl := newTable(t, "client_orders", m)

	rec := validOrder()
	rec["order_id"] = 10.0
	rec["created_at"] = "Mon, 15 Jan 2024 00:00:00 GMT"
	form := tbl.EditForm(rec)
	form.Apply(Record{"num_units": 7.0, "not_a_field": "x"})
	assert.ElementsMatch(t, []string{"num_units", "not_a_field"}, form.Changed())

	_, err := tbl.Submit(context.Background(), form)
	require.NoError(t, err)
	require.Len(t, m.calls, 1)
	assert.Equal(t, Record{"num_units": 7.0}, m.calls[0].rec)
	assert.Nil(t, form.Changed(), "closing the form resets the changed set")
}

func TestSubmitUpdate_AppliedFormValidatesMergedValues(t *testing.T) {
	m := &fakeMutator{}
	tbl := newTable(t, "client_orders", m)

	rec := validOrder()
	rec["order_id"] = 10.0
	form := tbl.EditForm(rec)
	form.Apply(Record{"num_units": 0.0})

	_, err := tbl.Submit(context.Background(), form)
	var verrs ValidationErrors
	require.ErrorAs(t, err, &verrs)
	assert.Empty(t, m.calls)
	assert.True(t, form.Open)
	assert.Equal(t, 0.0, form.Values["num_units"])
	assert.Equal(t, rec["design_description"], form.Values["design_description"])
}

func TestSubmitUpdate_KeepsStoredImagePath(t *testing.T) {
	m := &fakeMutator{}
	tbl := newTable(t, "client_orders", m)

	rec := validOrder()
	rec["order_id"] = 10.0
	rec["design_image"] = "uploads/a.jpg"
	_, err := tbl.Submit(context.Background(), tbl.EditForm(rec))
	require.NoError(t, err)
	assert.Equal(t, "uploads/a.jpg", m.calls[0].rec["design_image"])
}

func TestDelete(t *testing.T) {
	m := &fakeMutator{}
	tbl := newTable(t, "workers", m)
	require.NoError(t, tbl.Delete(context.Background(), "3"))
	assert.Equal(t, call{op: "delete", entity: "workers", id: "3"}, m.calls[0])
	assert.ErrorIs(t, tbl.Delete(context.Background(), ""), ErrNoIdentifier)
}

func TestDecodeDataURL(t *testing.T) {
	raw, err := decodeDataURL("data:image/png;base64,aGk=")
	require.NoError(t, err)
	assert.Equal(t, []byte("hi"), raw)

	_, err = decodeDataURL("data:text/plain,hi")
	assert.ErrorIs(t, err, ErrBadDataURL)
}
