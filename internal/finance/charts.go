package finance

import (
	"errors"
	"fmt"

	"github.com/vicanso/go-charts/v2"
)

// RenderLine renders a dated value series as a PNG line chart. Labels and
// values must be index-aligned; shorter of the two wins.
func RenderLine(labels []string, values []float64, title string) ([]byte, error) {
	n := min(len(labels), len(values))
	if n < 2 {
		return nil, errors.New("not enough data points")
	}
	labels = labels[:n]
	values = values[:n]

	cacheKey := fmt.Sprintf("line|%s|%d|%s|%.6f|%.6f", title, n, labels[0], values[0], values[n-1])
	if img, ok := cacheGet(cacheKey); ok {
		return img, nil
	}

	yMin, yMax := values[0], values[0]
	for _, v := range values[1:] {
		if v < yMin {
			yMin = v
		}
		if v > yMax {
			yMax = v
		}
	}
	pad := (yMax - yMin) * 0.05
	if pad < yMax*0.002 {
		pad = yMax * 0.002
	}
	yMin -= pad
	if yMin < 0 && values[0] >= 0 {
		yMin = 0
	}
	yMax += pad

	split := 10
	if n < split {
		split = n
	}

	painter, err := charts.LineRender([][]float64{values},
		charts.TitleTextOptionFunc(title),
		charts.XAxisOptionFunc(charts.XAxisOption{Data: labels, BoundaryGap: charts.FalseFlag(), SplitNumber: split}),
		charts.YAxisOptionFunc(charts.YAxisOption{Min: &yMin, Max: &yMax, DivideCount: 5}),
		charts.ThemeOptionFunc(charts.ThemeLight),
	)
	if err != nil {
		return nil, err
	}
	img, err := painter.Bytes()
	if err != nil {
		return nil, err
	}
	cacheSet(cacheKey, img)
	return img, nil
}

// RenderPie renders labeled values as a PNG pie chart.
func RenderPie(labels []string, values []float64, title string) ([]byte, error) {
	n := min(len(labels), len(values))
	if n == 0 {
		return nil, errors.New("no data")
	}
	labels = labels[:n]
	values = values[:n]

	cacheKey := fmt.Sprintf("pie|%s|%d|%s|%.6f", title, n, labels[0], values[0])
	if img, ok := cacheGet(cacheKey); ok {
		return img, nil
	}

	data := make([][]float64, n)
	for i, v := range values {
		data[i] = []float64{v}
	}
	seriesList := charts.NewSeriesListDataFromValues(data, charts.ChartTypePie)
	for i := range seriesList {
		seriesList[i].Name = labels[i]
		seriesList[i].Label.Show = true
	}

	painter, err := charts.Render(charts.ChartOption{SeriesList: seriesList},
		charts.TitleTextOptionFunc(title),
		charts.LegendOptionFunc(charts.LegendOption{Data: labels}),
		charts.ThemeOptionFunc(charts.ThemeLight),
	)
	if err != nil {
		return nil, err
	}
	img, err := painter.Bytes()
	if err != nil {
		return nil, err
	}
	cacheSet(cacheKey, img)
	return img, nil
}
