package directory

import (
	"context"
	"fmt"
	"os"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/example/ucs-gateway/internal/model"
)

// Static serves contact info from a fixed table.
type Static struct {
	mu    sync.RWMutex
	users map[string]ContactInfo
}

func NewStatic(users ...ContactInfo) *Static {
	s := &Static{users: make(map[string]ContactInfo, len(users))}
	for _, u := range users {
		s.Put(u)
	}
	return s
}

// NewMock returns the development directory used when no real one is configured.
func NewMock() *Static {
	return NewStatic(
		contact("eafry", "eafry@cognitivemedicine.com", "18583957317", "eafry@socraticgrid.org", "18583957317"),
		contact("jhughes", "jhughes@cognitivemedicine.com", "000000000", "jhughes@socraticgrid.org", "000000000"),
		contact("ealiverti", "ealiverti@cognitivemedicine.com", "491623342171", "ealiverti@socraticgrid.org", "+4981614923621"),
	)
}

type fileEntry struct {
	Name      string            `yaml:"name"`
	Addresses map[string]string `yaml:"addresses"`
	Preferred string            `yaml:"preferred"`
}

type fileFormat struct {
	Users []fileEntry `yaml:"users"`
}

// LoadFile reads a YAML fixture of the form
//
//	users:
//	  - name: eafry
//	    preferred: EMAIL
//	    addresses:
//	      EMAIL: eafry@example.org
//	      SMS: "18583957317"
func LoadFile(path string) (*Static, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read directory file: %w", err)
	}
	return Parse(raw)
}

func Parse(raw []byte) (*Static, error) {
	var f fileFormat
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return nil, fmt.Errorf("parse directory file: %w", err)
	}
	s := NewStatic()
	for i, e := range f.Users {
		if e.Name == "" {
			return nil, fmt.Errorf("directory entry %d: name is required", i)
		}
		info := ContactInfo{Name: e.Name, AddressesByType: make(map[string]model.PhysicalAddress, len(e.Addresses))}
		for svc, addr := range e.Addresses {
			info.AddressesByType[svc] = model.NewPhysicalAddress(svc, addr)
		}
		if e.Preferred != "" {
			pa, ok := info.AddressesByType[e.Preferred]
			if !ok {
				return nil, fmt.Errorf("directory entry %s: preferred service %s has no address", e.Name, e.Preferred)
			}
			info.PreferredAddress = pa
		}
		s.Put(info)
	}
	return s, nil
}

// Put adds or replaces a user.
func (s *Static) Put(info ContactInfo) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users[info.Name] = copyInfo(info)
}

func (s *Static) ResolveUserContactInfo(_ context.Context, userName string) (ContactInfo, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	info, ok := s.users[userName]
	if !ok {
		return ContactInfo{}, fmt.Errorf("%s: %w", userName, ErrUnknownUser)
	}
	return copyInfo(info), nil
}

func copyInfo(info ContactInfo) ContactInfo {
	out := info
	out.AddressesByType = make(map[string]model.PhysicalAddress, len(info.AddressesByType))
	for k, v := range info.AddressesByType {
		out.AddressesByType[k] = v
	}
	return out
}
