package cli

import (
	"strconv"
	"time"

	"figdesk/internal/model"
	"figdesk/internal/store"
)

type figureView struct {
	ID          model.FigureID `json:"id"`
	Name        string         `json:"name"`
	FileName    string         `json:"fileName"`
	Height      float64        `json:"height"`
	Width       float64        `json:"width"`
	DPI         int            `json:"dpi"`
	Units       model.Units    `json:"units"`
	CreatedDate string         `json:"createdDate,omitempty"`
	UpdatedDate string         `json:"updatedDate"`
	ImageURL    string         `json:"imageUrl"`
	Code        string         `json:"code,omitempty"`
}

func newFigureView(f model.Figure, imageURL string, withCode bool) figureView {
	v := figureView{
		ID:          f.ID,
		Name:        f.Name,
		FileName:    f.FileName,
		Height:      f.Height,
		Width:       f.Width,
		DPI:         f.DPI,
		Units:       f.Units,
		CreatedDate: f.CreatedDate,
		UpdatedDate: f.UpdatedDate,
		ImageURL:    imageURL,
	}
	if withCode {
		v.Code = f.Code
	}
	return v
}

func (v figureView) canvas() string {
	return ftoa(v.Height) + "x" + ftoa(v.Width) + " " + string(v.Units) + " @" + strconv.Itoa(v.DPI)
}

func (v figureView) Columns() []string { return []string{"field", "value"} }

func (v figureView) Rows() [][]string {
	rows := [][]string{
		{"id", v.ID.String()},
		{"name", v.Name},
		{"file", v.FileName},
		{"canvas", v.canvas()},
		{"created", v.CreatedDate},
		{"updated", v.UpdatedDate},
		{"image", v.ImageURL},
	}
	if v.Code != "" {
		rows = append(rows, []string{"code", v.Code})
	}
	return rows
}

type figureList []figureView

func (l figureList) Columns() []string {
	return []string{"id", "name", "canvas", "updated"}
}

func (l figureList) Rows() [][]string {
	rows := make([][]string, 0, len(l))
	for _, v := range l {
		rows = append(rows, []string{v.ID.String(), v.Name, v.canvas(), v.UpdatedDate})
	}
	return rows
}

type deletedView struct {
	ID      model.FigureID `json:"id"`
	Name    string         `json:"name"`
	Deleted bool           `json:"deleted"`
}

func (v deletedView) Columns() []string { return []string{"id", "name", "deleted"} }

func (v deletedView) Rows() [][]string {
	return [][]string{{v.ID.String(), v.Name, strconv.FormatBool(v.Deleted)}}
}

type dataView struct {
	ID   model.FigureID `json:"id"`
	Text string         `json:"text"`
}

type downloadView struct {
	ID    model.FigureID `json:"id"`
	Paths []string       `json:"paths"`
}

func (v downloadView) Columns() []string { return []string{"path"} }

func (v downloadView) Rows() [][]string {
	rows := make([][]string, 0, len(v.Paths))
	for _, p := range v.Paths {
		rows = append(rows, []string{p})
	}
	return rows
}

type entryList []store.Entry

func (l entryList) Columns() []string {
	return []string{"at", "figure", "kind", "detail", "server"}
}

func (l entryList) Rows() [][]string {
	rows := make([][]string, 0, len(l))
	for _, e := range l {
		rows = append(rows, []string{
			e.At.Local().Format(time.DateTime),
			e.FigureID.String(),
			string(e.Kind),
			e.Detail,
			e.Server,
		})
	}
	return rows
}

type configEntry struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

type configView struct {
	Path    string        `json:"path"`
	Entries []configEntry `json:"entries"`
}

func newConfigView(path string, cfg *store.Config) configView {
	v := configView{Path: path}
	for _, k := range store.ConfigKeys() {
		val, _ := cfg.Get(k)
		v.Entries = append(v.Entries, configEntry{Key: k, Value: val})
	}
	return v
}

func (v configView) Columns() []string { return []string{"key", "value"} }

func (v configView) Rows() [][]string {
	rows := make([][]string, 0, len(v.Entries))
	for _, e := range v.Entries {
		rows = append(rows, []string{e.Key, e.Value})
	}
	return rows
}

func ftoa(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}
