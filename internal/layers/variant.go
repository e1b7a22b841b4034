package layers

// Kind is the geometry a layer draws.
type Kind int

const (
	KindPoint Kind = iota
	KindLine
	KindPolygon
)

func (k Kind) String() string {
	switch k {
	case KindPoint:
		return "point"
	case KindLine:
		return "line"
	case KindPolygon:
		return "polygon"
	default:
		return "unknown"
	}
}

// Variant configures one intervention type. Every Handle is driven by one.
type Variant struct {
	ID      string
	Title   string
	Kind    Kind
	Group   string
	Color   string
	Tooltip string
	// Aliases are document keys used for this layer by older releases.
	Aliases []string
	// Labelled variants carry an editable label and colour per feature.
	Labelled     bool
	DefaultLabel string
}

const (
	ModalFilters     = "ModalFilters"
	BusGates         = "BusGates"
	TrafficLights    = "TrafficLights"
	PedestrianLights = "PedestrianLights"
	ZebraCrossing    = "ZebraCrossing"
	MobilityLanes    = "MobilityLanes"
	TramLines        = "TramLines"
	CarFreeStreets   = "CarFreeStreets"
	SchoolStreet     = "SchoolStreet"
	OneWayStreets    = "OneWayStreets"
	LtnCells         = "LtnCells"
)

const (
	GroupFilters         = "filters"
	GroupTrafficControls = "traffic-controls"
)

// LabelZoomThreshold is the zoom level from which LTN cell labels are shown.
const LabelZoomThreshold = 14

// Variants returns the closed set of layer variants in registry order.
func Variants() []Variant {
	return []Variant{
		{ID: ModalFilters, Title: "Modal Filters", Kind: KindPoint, Group: GroupFilters, Color: "green", Tooltip: "Add modal filters to the map", Aliases: []string{"Modals"}},
		{ID: BusGates, Title: "Bus Gates", Kind: KindPoint, Group: GroupFilters, Color: "#0050b5", Tooltip: "Add bus gates to the map"},
		{ID: TrafficLights, Title: "Traffic Lights", Kind: KindPoint, Group: GroupTrafficControls, Color: "#d40000", Tooltip: "Add traffic lights to the map"},
		{ID: PedestrianLights, Title: "Pedestrian Lights", Kind: KindPoint, Group: GroupTrafficControls, Color: "#00a000", Tooltip: "Add pedestrian lights to the map"},
		{ID: ZebraCrossing, Title: "Zebra Crossing", Kind: KindPoint, Group: GroupTrafficControls, Color: "#333333", Tooltip: "Add zebra crossings to the map"},
		{ID: MobilityLanes, Title: "Mobility Lanes", Kind: KindLine, Color: "#2222ff", Tooltip: "Add mobility lanes to the map", Aliases: []string{"CycleLanes"}},
		{ID: TramLines, Title: "Tram Lines", Kind: KindLine, Color: "#ff5e00", Tooltip: "Add tram lines to the map"},
		{ID: CarFreeStreets, Title: "Car-free Streets", Kind: KindLine, Color: "#00bb00", Tooltip: "Add car-free streets to the map"},
		{ID: SchoolStreet, Title: "School Streets", Kind: KindLine, Color: "#E6EA09", Tooltip: "Add school streets to the map"},
		{ID: OneWayStreets, Title: "One-way Streets", Kind: KindLine, Color: "#000000", Tooltip: "Add one-way streets to the map"},
		{ID: LtnCells, Title: "LTN Cells", Kind: KindPolygon, Color: "#ff5e00", Tooltip: "Add LTN Cells to the map", Labelled: true, DefaultLabel: "1"},
	}
}
