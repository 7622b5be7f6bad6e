// Package model holds the in-memory services/bouquets store and the
// mutation operations the controller exposes to a front-end.
package model

// ServiceType classifies a row in the services view.
type ServiceType string

const (
	TypeTV     ServiceType = "TV"
	TypeRadio  ServiceType = "Radio"
	TypeData   ServiceType = "Data"
	TypeIPTV   ServiceType = "IPTV"
	TypeMarker ServiceType = "Marker"
	TypeSpace  ServiceType = "Space"
	TypeAlt    ServiceType = "Alt"
)

// BouquetType selects the on-disk family a bouquet belongs to.
type BouquetType string

const (
	BouquetTV    BouquetType = "tv"
	BouquetRadio BouquetType = "radio"
	BouquetAux   BouquetType = "bouquet"
	BouquetWebTV BouquetType = "webtv"
)

// Service is a value object keyed by FavID. Entries are replaced whole,
// never mutated in place.
type Service struct {
	FavID           string
	RefID           string // full service reference, the blacklist key
	Name            string
	Type            ServiceType
	Coded           bool
	Locked          bool
	Hidden          bool
	Package         string
	PiconID         string
	TransponderType string // "s", "t" or "c"
	Pos             string // orbital position, or "T"/"C"
	SSID            string
	Freq            string
	Rate            string
	Pol             string
	FEC             string
	System          string
	Modulation      string
	FlagsCas        string // raw flag list, preserved verbatim
	DataID          string
	Transponder     string // opaque transponder payload
	CasList         []string
	EpgID           string // tvg-id annotation set by auto-configure

	// AltRefs lists the fav_ids an Alt pseudo-service fans out to.
	// Empty for every other type.
	AltRefs []string
}

// IsVideo reports whether the service counts as TV for auto-bouquet splits.
func (s Service) IsVideo() bool {
	switch s.Type {
	case TypeTV, TypeIPTV:
		return true
	}
	return false
}

// Bouquet is an ordered sequence of fav_ids. Services are referenced by
// key only, never by object identity.
type Bouquet struct {
	Name     string
	Type     BouquetType
	Locked   bool
	Hidden   bool
	File     string // on-disk stem, optional; slug of Name when empty
	Services []string
}

// ID identifies the bouquet within the session and inside the blacklist.
func (b *Bouquet) ID() string { return b.Name + ":" + string(b.Type) }

// BouquetGroup is a named container holding bouquets of one type.
type BouquetGroup struct {
	Name     string
	Type     BouquetType
	Bouquets []*Bouquet
}

// Transponder is one transmission on a satellite.
type Transponder struct {
	Freq         string
	SymbolRate   string
	Polarization string
	FecInner     string
	System       string
	Modulation   string
	PlsMode      string
	PlsCode      string
	IsID         string
	T2miPlpID    string
}

// Satellite is one <sat> entry from satellites.xml. Position is in
// tenths of a degree, negative for west.
type Satellite struct {
	Name         string
	Flags        string
	Position     int
	Transponders []Transponder
}

// EpgEvent is one programme for one service.
type EpgEvent struct {
	ServiceName string
	ServiceRef  string
	Title       string
	Start       int64 // UTC epoch seconds
	End         int64
	Length      int64 // seconds
	Desc        string
	EventData   []byte
}
