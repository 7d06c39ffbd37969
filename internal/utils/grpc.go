package utils

import (
	"fmt"
	"strings"

	"google.golang.org/protobuf/reflect/protoreflect"
)

// ParseMethodFullName splits "pkg.Service.Method" into the service and method names.
func ParseMethodFullName(methodFullName string) (string, string, error) {
	if methodFullName == "" {
		return "", "", fmt.Errorf("method full name is empty")
	}
	lastDot := strings.LastIndex(methodFullName, ".")
	if lastDot == -1 {
		return "", "", fmt.Errorf("no dot found in method full name: %s", methodFullName)
	}
	service := methodFullName[:lastDot]
	method := methodFullName[lastDot+1:]
	if service == "" || method == "" {
		return "", "", fmt.Errorf("invalid method full name format: %s", methodFullName)
	}
	return service, method, nil
}

// MethodPath returns the gRPC request path for "pkg.Service.Method".
func MethodPath(methodFullName string) (string, error) {
	service, method, err := ParseMethodFullName(methodFullName)
	if err != nil {
		return "", err
	}
	return "/" + service + "/" + method, nil
}

// GetNestedField walks a dotted field path through a dynamic message.
func GetNestedField(msg protoreflect.Message, fieldPath string) (protoreflect.Value, error) {
	parts := strings.Split(fieldPath, ".")
	current := msg
	for i, part := range parts {
		fd := current.Descriptor().Fields().ByName(protoreflect.Name(part))
		if fd == nil {
			return protoreflect.Value{}, fmt.Errorf("field '%s' not found", part)
		}
		value := current.Get(fd)
		if i == len(parts)-1 {
			return value, nil
		}
		if fd.Message() == nil || fd.IsList() || fd.IsMap() {
			return protoreflect.Value{}, fmt.Errorf("field '%s' is not a message", part)
		}
		current = value.Message()
	}
	return protoreflect.Value{}, fmt.Errorf("empty field path")
}
