package server

import (
	"context"
	"fmt"
	"reflect"
	"sort"
	"unicode"
	"unicode/utf8"
)

type service struct {
	name   string
	rcvr   reflect.Value
	typ    reflect.Type
	method map[string]reflect.Method // command name -> method
}

// newService inspects rcvr and collects every method with the Handler signature.
func newService(rcvr any) (*service, error) {
	typ := reflect.TypeOf(rcvr)
	if typ == nil || typ.Kind() != reflect.Ptr {
		return nil, fmt.Errorf("rpc: rcvr must be a pointer, got %T", rcvr)
	}
	if typ.Elem().Kind() != reflect.Struct {
		return nil, fmt.Errorf("rpc: rcvr must point to a struct, got %s", typ.Elem().Kind())
	}

	svc := &service{
		name:   typ.Elem().Name(),
		rcvr:   reflect.ValueOf(rcvr),
		typ:    typ,
		method: make(map[string]reflect.Method),
	}
	svc.registerMethods()
	if len(svc.method) == 0 {
		return nil, fmt.Errorf("rpc: %s has no command methods", svc.name)
	}
	return svc, nil
}

var (
	contextType = reflect.TypeOf((*context.Context)(nil)).Elem()
	argsType    = reflect.TypeOf(map[string]any(nil))
	anyType     = reflect.TypeOf((*any)(nil)).Elem()
	errorType   = reflect.TypeOf((*error)(nil)).Elem()
)

// registerMethods keeps methods shaped (receiver, context.Context, map[string]any) (any, error).
func (s *service) registerMethods() {
	for i := 0; i < s.typ.NumMethod(); i++ {
		m := s.typ.Method(i)
		mt := m.Type
		if mt.NumIn() != 3 || mt.NumOut() != 2 ||
			mt.In(1) != contextType || mt.In(2) != argsType ||
			mt.Out(0) != anyType || mt.Out(1) != errorType {
			continue
		}
		s.method[commandName(m.Name)] = m
	}
}

func (s *service) commands() []string {
	names := make([]string, 0, len(s.method))
	for name := range s.method {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// handler binds the method for command name to the receiver.
func (s *service) handler(name string) Handler {
	m := s.method[name]
	return func(ctx context.Context, args map[string]any) (any, error) {
		if ctx == nil {
			ctx = context.Background()
		}
		in := [3]reflect.Value{s.rcvr, reflect.ValueOf(ctx), reflect.ValueOf(args)}
		out := m.Func.Call(in[:])
		var err error
		if !out[1].IsNil() {
			err = out[1].Interface().(error)
		}
		return out[0].Interface(), err
	}
}

// commandName lowers the first letter: EnsureImportUpdates -> ensureImportUpdates.
func commandName(method string) string {
	r, size := utf8.DecodeRuneInString(method)
	return string(unicode.ToLower(r)) + method[size:]
}
