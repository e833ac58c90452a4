package scheme

import (
	"fmt"
	"reflect"
	"sync"

	"github.com/pkg/errors"
)

// KnownTypesRegistry maps type tags to go struct types and back.
// A stored payload is decoded into a fresh instance created by NewObject from its tag.
type KnownTypesRegistry interface {
	AddKnownTypes(g Group, types ...interface{})
	AddKnownTypeWithName(gk GroupKind, obj interface{})
	NewObject(gk GroupKind) (interface{}, error)
	ObjectKind(obj interface{}) (*GroupKind, error)
}

func NewKnownTypesRegistry() KnownTypesRegistry {
	return &knownTypesRegistry{gkToType: map[GroupKind]reflect.Type{}, typeToGK: map[reflect.Type]GroupKind{}}
}

type knownTypesRegistry struct {
	mutex sync.RWMutex
	// gkToType allows one to figure out the go type of an object with the given tag.
	gkToType map[GroupKind]reflect.Type
	// typeToGK is indexed by struct type, never by pointer type.
	typeToGK map[reflect.Type]GroupKind
}

func (r *knownTypesRegistry) AddKnownTypes(g Group, types ...interface{}) {
	for _, obj := range types {
		structType := GetStructType(obj)
		r.addKnownTypeWithName(GroupKind{Group: g, Kind: structType.Name()}, structType)
	}
}

func (r *knownTypesRegistry) AddKnownTypeWithName(gk GroupKind, obj interface{}) {
	r.addKnownTypeWithName(gk, GetStructType(obj))
}

func (r *knownTypesRegistry) NewObject(gk GroupKind) (interface{}, error) {
	r.mutex.RLock()
	t, exists := r.gkToType[gk]
	r.mutex.RUnlock()

	if !exists {
		return nil, errors.Errorf("type %s is not registered in KnownTypes", gk.String())
	}

	return reflect.New(t).Interface(), nil
}

func (r *knownTypesRegistry) ObjectKind(obj interface{}) (*GroupKind, error) {
	structType := GetStructType(obj)

	r.mutex.RLock()
	gk, ok := r.typeToGK[structType]
	r.mutex.RUnlock()

	if !ok {
		return nil, errors.Errorf("no kind is registered in schema for the type %s", structType.Name())
	}

	return &gk, nil
}

func (r *knownTypesRegistry) addKnownTypeWithName(gk GroupKind, structType reflect.Type) {
	if len(gk.Group) == 0 {
		panic(fmt.Sprintf("group is required on all types: %s %v", gk, structType))
	}

	r.mutex.Lock()
	defer r.mutex.Unlock()

	if oldT, found := r.gkToType[gk]; found && oldT != structType {
		panic(fmt.Sprintf("Double registration of different types for %v: old=%v.%v, new=%v.%v", gk, oldT.PkgPath(), oldT.Name(), structType.PkgPath(), structType.Name()))
	}

	r.gkToType[gk] = structType
	r.typeToGK[structType] = gk
}

// GetStructType returns the struct type behind obj, obj may be a struct or a pointer to a struct
func GetStructType(obj interface{}) reflect.Type {
	structType := reflect.TypeOf(obj)

	if structType == nil {
		panic("nil passed as a type")
	}

	if structType.Kind() == reflect.Ptr {
		structType = structType.Elem()
	}

	if structType.Kind() != reflect.Struct {
		panic("all types must be structs or pointers to structs")
	}

	return structType
}
