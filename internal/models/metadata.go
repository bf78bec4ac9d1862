package models

// SampleType identifies the numeric type of a raster band's samples.
type SampleType string

const (
	SampleByte    SampleType = "Byte"
	SampleUInt16  SampleType = "UInt16"
	SampleInt16   SampleType = "Int16"
	SampleUInt32  SampleType = "UInt32"
	SampleFloat32 SampleType = "Float32"
	SampleFloat64 SampleType = "Float64"
)

// ColorInterpretation describes how a band contributes to a rendered pixel.
type ColorInterpretation string

const (
	InterpGray  ColorInterpretation = "Gray"
	InterpRed   ColorInterpretation = "Red"
	InterpGreen ColorInterpretation = "Green"
	InterpBlue  ColorInterpretation = "Blue"
	InterpAlpha ColorInterpretation = "Alpha"
)

// BandInfo describes one band of the source raster. Field names follow the
// STAC raster:bands / eo:bands extensions so responses embed directly.
type BandInfo struct {
	Index          int                 `json:"band"`
	DataType       SampleType          `json:"data_type"`
	Interpretation ColorInterpretation `json:"color_interpretation"`
	NoDataValue    *float64            `json:"nodata,omitempty"`
}

// CRSInfo is the coordinate reference system of the source raster.
type CRSInfo struct {
	WKT  string `json:"wkt,omitempty"`
	EPSG int    `json:"epsg,omitempty"`
}

// Coordinate is an x/y (longitude/latitude or easting/northing) pair.
type Coordinate [2]float64

// CornerCoordinates are the georeferenced corners and center of the image.
type CornerCoordinates struct {
	UpperLeft  Coordinate `json:"upperLeft"`
	LowerLeft  Coordinate `json:"lowerLeft"`
	LowerRight Coordinate `json:"lowerRight"`
	UpperRight Coordinate `json:"upperRight"`
	Center     Coordinate `json:"center"`
}

// ImageMetadata is populated when a viewpoint transitions to READY. The shape
// mirrors the STAC proj:* extension block (proj:transform, proj:shape).
type ImageMetadata struct {
	Size         [2]int            `json:"size"`
	CRS          CRSInfo           `json:"crs"`
	GeoTransform [6]float64        `json:"geotransform"`
	PixelSize    [2]float64        `json:"pixel_size"`
	Corners      CornerCoordinates `json:"cornerCoordinates"`
	Bands        []BandInfo        `json:"bands"`
	DriverName   string            `json:"driver,omitempty"`
}

// Apply maps a pixel coordinate through the affine geotransform.
func (m *ImageMetadata) Apply(px, py float64) Coordinate {
	gt := m.GeoTransform
	return Coordinate{
		gt[0] + px*gt[1] + py*gt[2],
		gt[3] + px*gt[4] + py*gt[5],
	}
}

// BandStatistics is the per-band numeric summary computed by the statistics
// module.
type BandStatistics struct {
	Band      int       `json:"band"`
	Min       float64   `json:"minimum"`
	Max       float64   `json:"maximum"`
	Mean      float64   `json:"mean"`
	StdDev    float64   `json:"std_dev"`
	Histogram []int64   `json:"histogram,omitempty"`
	Buckets   []float64 `json:"histogram_buckets,omitempty"`
}

// ImageStatistics aggregates band summaries for a viewpoint.
type ImageStatistics struct {
	Bands []BandStatistics `json:"bands"`
}
