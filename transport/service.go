package transport

// Property is a GATT characteristic property bit
type Property uint8

const (
	PropertyRead Property = 1 << iota
	PropertyWrite
	PropertyWriteWithoutResponse
	PropertyNotify
)

// Permission is a GATT attribute permission bit
type Permission uint8

const (
	PermissionReadable Permission = 1 << iota
	PermissionWriteable
)

// Descriptor is a characteristic descriptor with a constant value
type Descriptor struct {
	UUID  string `json:"uuid"`
	Value string `json:"value"`
}

// CharacteristicDescriptor describes one characteristic of a service
type CharacteristicDescriptor struct {
	UUID        string       `json:"uuid"`
	Properties  Property     `json:"properties"`
	Permissions Permission   `json:"permissions"`
	Descriptors []Descriptor `json:"descriptors,omitempty"`
}

// Has reports whether all bits of p are set
func (c CharacteristicDescriptor) Has(p Property) bool {
	return c.Properties&p == p
}

// ServiceDescriptor is what a peripheral registers before advertising
type ServiceDescriptor struct {
	UUID            string                     `json:"uuid"`
	Characteristics []CharacteristicDescriptor `json:"characteristics"`
}

// Characteristic finds a characteristic by UUID, accepting long-form UUIDs
func (s ServiceDescriptor) Characteristic(uuid string) (CharacteristicDescriptor, bool) {
	for _, c := range s.Characteristics {
		if MatchUUID(uuid, c.UUID) {
			return c, true
		}
	}
	return CharacteristicDescriptor{}, false
}

// NewServiceDescriptor builds the single-characteristic cow-shake service
func NewServiceDescriptor(serviceUUID, charUUID string) ServiceDescriptor {
	return ServiceDescriptor{
		UUID: serviceUUID,
		Characteristics: []CharacteristicDescriptor{
			{
				UUID:        charUUID,
				Properties:  PropertyWrite | PropertyRead | PropertyWriteWithoutResponse | PropertyNotify,
				Permissions: PermissionWriteable | PermissionReadable,
				Descriptors: []Descriptor{
					{UUID: DescriptorUUID, Value: DescriptorValue},
				},
			},
		},
	}
}

// DefaultServiceDescriptor returns the service with the fixed UUIDs
func DefaultServiceDescriptor() ServiceDescriptor {
	return NewServiceDescriptor(ServiceUUID, CharacteristicUUID)
}
