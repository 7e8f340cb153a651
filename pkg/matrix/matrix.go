// Package matrix loads an ARXML/JSON/YAML service-description document and
// exposes numeric service/method/event/field id lookup for output
// formatting. Read-only after Load; safe for concurrent lookups.
package matrix

import (
	"encoding/json"
	"encoding/xml"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/yaml.v2"

	"github.com/AmnesiaBeing/someip-parser/pkg/someiperr"
)

// Matrix maps numeric ids, scoped by service, to short human-readable
// names.
type Matrix struct {
	// services maps a SOMEIP-SERVICE-ID to its short name.
	services map[uint32]string
	// members maps (serviceID, memberID) to its short name, where memberID
	// already has the _GET/_SET/_NOTIFIER bit folded in per field
	// expansion rules.
	members map[memberKey]string
}

type memberKey struct {
	serviceID uint32
	memberID  uint32
}

// New returns an empty matrix; every Lookup misses until Load populates it.
func New() *Matrix {
	return &Matrix{
		services: make(map[uint32]string),
		members:  make(map[memberKey]string),
	}
}

// ServiceName returns the mapped name for a service id, or the hex form if
// unmapped.
func (m *Matrix) ServiceName(serviceID uint32) string {
	if name, ok := m.services[serviceID]; ok {
		return name
	}
	return fmt.Sprintf("0x%04X", serviceID)
}

// MethodName returns the mapped name for (serviceID, methodID), or the hex
// form if unmapped.
func (m *Matrix) MethodName(serviceID, methodID uint32) string {
	if name, ok := m.members[memberKey{serviceID, methodID}]; ok {
		return name
	}
	return fmt.Sprintf("0x%04X", methodID)
}

// Field id expansion bits, folded into the member id space alongside plain
// event/method ids.
const (
	fieldSetBit      = 0x8000
	fieldNotifierBit = 0x4000
)

// arPackageDoc mirrors the nested AR-PACKAGES/ELEMENTS/SUB-PACKAGES shape
// described for the matrix document, shared across the JSON/YAML/XML
// encodings via field tags.
type arPackageDoc struct {
	ARPackages []arPackage `json:"AR-PACKAGES" yaml:"AR-PACKAGES" xml:"AR-PACKAGES>AR-PACKAGE"`
}

type arPackage struct {
	Elements     []arElement `json:"ELEMENTS" yaml:"ELEMENTS" xml:"ELEMENTS>ELEMENT"`
	SubPackages  []arPackage `json:"SUB-PACKAGES" yaml:"SUB-PACKAGES" xml:"SUB-PACKAGES>AR-PACKAGE"`
}

type arElement struct {
	ServiceInterface *someipServiceInterface `json:"SOMEIP-SERVICE-INTERFACE" yaml:"SOMEIP-SERVICE-INTERFACE" xml:"SOMEIP-SERVICE-INTERFACE"`
}

type someipServiceInterface struct {
	ShortName string       `json:"SHORT-NAME" yaml:"SHORT-NAME" xml:"SHORT-NAME"`
	ServiceID string       `json:"SOMEIP-SERVICE-ID" yaml:"SOMEIP-SERVICE-ID" xml:"SOMEIP-SERVICE-ID"`
	Events    []arMember   `json:"EVENTS" yaml:"EVENTS" xml:"EVENTS>EVENT"`
	Methods   []arMember   `json:"METHODS" yaml:"METHODS" xml:"METHODS>METHOD"`
	Fields    []arMember   `json:"FIELDS" yaml:"FIELDS" xml:"FIELDS>FIELD"`
}

type arMember struct {
	ShortName string `json:"SHORT-NAME" yaml:"SHORT-NAME" xml:"SHORT-NAME"`
	ID        string `json:"SOMEIP-METHOD-ID" yaml:"SOMEIP-METHOD-ID" xml:"SOMEIP-METHOD-ID"`
	FieldID   string `json:"SOMEIP-FIELD-ID" yaml:"SOMEIP-FIELD-ID" xml:"SOMEIP-FIELD-ID"`
}

// Load parses path, dispatching on its extension (.json, .yaml/.yml,
// .arxml/.xml), and builds the id-to-name tables.
func Load(path string) (*Matrix, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, someiperr.Wrapf(someiperr.ErrMatrixFile, "reading %s", path)
	}

	var doc arPackageDoc

	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		if err := json.Unmarshal(data, &doc); err != nil {
			return nil, someiperr.Wrapf(someiperr.ErrMatrixFile, "parsing json matrix %s: %v", path, err)
		}
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &doc); err != nil {
			return nil, someiperr.Wrapf(someiperr.ErrMatrixFile, "parsing yaml matrix %s: %v", path, err)
		}
	case ".arxml", ".xml":
		if err := xml.Unmarshal(data, &doc); err != nil {
			return nil, someiperr.Wrapf(someiperr.ErrMatrixFile, "parsing arxml matrix %s: %v", path, err)
		}
	default:
		return nil, someiperr.Wrapf(someiperr.ErrMatrixFile, "unrecognized matrix extension for %s", path)
	}

	m := New()
	for _, pkg := range doc.ARPackages {
		m.walk(pkg)
	}
	return m, nil
}

func (m *Matrix) walk(pkg arPackage) {
	for _, el := range pkg.Elements {
		if el.ServiceInterface != nil {
			m.addServiceInterface(el.ServiceInterface)
		}
	}
	for _, sub := range pkg.SubPackages {
		m.walk(sub)
	}
}

func (m *Matrix) addServiceInterface(svc *someipServiceInterface) {
	serviceID, err := parseHexID(svc.ServiceID)
	if err != nil {
		return
	}
	m.services[serviceID] = svc.ShortName

	for _, ev := range svc.Events {
		if id, err := parseHexID(ev.ID); err == nil {
			m.members[memberKey{serviceID, id}] = ev.ShortName
		}
	}
	for _, mth := range svc.Methods {
		if id, err := parseHexID(mth.ID); err == nil {
			m.members[memberKey{serviceID, id}] = mth.ShortName
		}
	}
	for _, f := range svc.Fields {
		id, err := parseHexID(f.FieldID)
		if err != nil {
			continue
		}
		m.members[memberKey{serviceID, id}] = f.ShortName + "_GET"
		m.members[memberKey{serviceID, id | fieldSetBit}] = f.ShortName + "_SET"
		m.members[memberKey{serviceID, id | fieldNotifierBit}] = f.ShortName + "_NOTIFIER"
	}
}

func parseHexID(s string) (uint32, error) {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "0x")
	s = strings.TrimPrefix(s, "0X")
	v, err := strconv.ParseUint(s, 16, 32)
	if err != nil {
		return 0, err
	}
	return uint32(v), nil
}
