package websocket

import (
	"reflect"
)

type ackInvoker func(err error, payload map[string]any)

var errorType = reflect.TypeOf((*error)(nil)).Elem()

// extractAck splits a trailing acknowledgement callback off the event args.
func extractAck(datas []any) (ackInvoker, []any) {
	if len(datas) == 0 {
		return nil, datas
	}

	ack := wrapAck(datas[len(datas)-1])
	if ack == nil {
		return nil, datas
	}
	return ack, datas[:len(datas)-1]
}

// wrapAck adapts whatever callback shape the client library hands us:
// func([]any, error), func(...any), func(map[string]any) and so on.
func wrapAck(candidate any) ackInvoker {
	if candidate == nil {
		return nil
	}

	value := reflect.ValueOf(candidate)
	if value.Kind() != reflect.Func || value.IsNil() {
		return nil
	}

	typ := value.Type()
	return func(err error, payload map[string]any) {
		args := make([]reflect.Value, typ.NumIn())
		for i := range args {
			args[i] = ackArg(typ.In(i), err, payload)
		}
		if typ.IsVariadic() {
			value.CallSlice(args)
			return
		}
		value.Call(args)
	}
}

func ackArg(target reflect.Type, err error, payload map[string]any) reflect.Value {
	switch {
	case target == errorType:
		if err == nil {
			return reflect.Zero(target)
		}
		return reflect.ValueOf(err)
	case target.Kind() == reflect.Slice && reflect.TypeOf(payload).AssignableTo(target.Elem()):
		slice := reflect.MakeSlice(target, 1, 1)
		slice.Index(0).Set(reflect.ValueOf(payload))
		return slice
	}

	rv := reflect.ValueOf(payload)
	if rv.Type().AssignableTo(target) {
		return rv
	}
	if rv.Type().ConvertibleTo(target) {
		return rv.Convert(target)
	}
	return reflect.Zero(target)
}

func respond(ack ackInvoker, payload map[string]any, err error) {
	if ack != nil {
		ack(err, payload)
	}
}
