package stow

import (
	"encoding/base64"
	"encoding/json"
	"fmt"

	"github.com/wuxler/stowage/pkg/errdefs"
)

// Body documents let unpackers persist nested object graphs inside a single
// content. A body is a JSON-like tree of maps, slices and scalars in which
// two tagged map shapes are reserved:
//
//   - {"__ref__": "ref", "ref": <content key>} points at a sibling content
//     of the same manifest, and
//   - {"__ref__": "content", "content_base64": ..., "content_type": ...,
//     "content_encoding": ..., "serializer_name": ...} embeds an encoded
//     payload inline.
//
// The saver does not interpret bodies; it persists them like any other
// value. Unpackers build bodies with NewBodyRef and NewBodyInline on unpack
// and resolve them with ResolveBody on repack.
const (
	bodyTagKey     = "__ref__"
	bodyTagRef     = "ref"
	bodyTagContent = "content"
)

// NewBodyRef returns a body node pointing at the sibling content stored
// under key.
func NewBodyRef(key string) map[string]any {
	return map[string]any{
		bodyTagKey: bodyTagRef,
		"ref":      key,
	}
}

// NewBodyInline returns a body node embedding the envelope payload inline.
func NewBodyInline(envelope *Envelope, serializerName string) map[string]any {
	node := map[string]any{
		bodyTagKey:        bodyTagContent,
		"content_base64":  base64.StdEncoding.EncodeToString(envelope.Data),
		"content_type":    envelope.ContentType,
		"serializer_name": serializerName,
	}
	if envelope.ContentEncoding != "" {
		node["content_encoding"] = envelope.ContentEncoding
	}
	return node
}

// ResolveBody walks a decoded body document and materializes every tagged
// node: refs are resolved through the resolve callback, inline contents are
// decoded with the named serializer from the registry. Untagged maps,
// slices and scalars are returned rebuilt with their children resolved.
func ResolveBody(doc any, registry *Registry, resolve func(key string) (any, error)) (any, error) {
	switch node := doc.(type) {
	case map[string]any:
		tag, tagged := node[bodyTagKey]
		if !tagged {
			resolved := make(map[string]any, len(node))
			for key, child := range node {
				value, err := ResolveBody(child, registry, resolve)
				if err != nil {
					return nil, fmt.Errorf("key %q: %w", key, err)
				}
				resolved[key] = value
			}
			return resolved, nil
		}
		switch tag {
		case bodyTagRef:
			return resolveBodyRef(node, resolve)
		case bodyTagContent:
			return resolveBodyInline(node, registry)
		default:
			return nil, errdefs.Newf(errdefs.ErrUnpackerContract,
				"body document: unknown %s tag %v", bodyTagKey, tag)
		}
	case []any:
		resolved := make([]any, len(node))
		for i, child := range node {
			value, err := ResolveBody(child, registry, resolve)
			if err != nil {
				return nil, fmt.Errorf("index %d: %w", i, err)
			}
			resolved[i] = value
		}
		return resolved, nil
	default:
		return doc, nil
	}
}

func resolveBodyRef(node map[string]any, resolve func(key string) (any, error)) (any, error) {
	key, ok := node["ref"].(string)
	if !ok || key == "" {
		return nil, errdefs.Newf(errdefs.ErrUnpackerContract,
			"body document: ref node without a ref key")
	}
	if resolve == nil {
		return nil, errdefs.Newf(errdefs.ErrUnpackerContract,
			"body document: ref %q cannot be resolved without siblings", key)
	}
	value, err := resolve(key)
	if err != nil {
		return nil, fmt.Errorf("resolve ref %q: %w", key, err)
	}
	return value, nil
}

func resolveBodyInline(node map[string]any, registry *Registry) (any, error) {
	encoded, ok := node["content_base64"].(string)
	if !ok {
		return nil, errdefs.Newf(errdefs.ErrUnpackerContract,
			"body document: inline node without content_base64")
	}
	data, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, errdefs.Newf(errdefs.ErrUnpackerContract,
			"body document: inline node payload: %w", err)
	}
	contentType, _ := node["content_type"].(string)
	contentEncoding, _ := node["content_encoding"].(string)
	serializerName, _ := node["serializer_name"].(string)
	if serializerName == "" {
		// untyped inline payloads surface as raw bytes
		return data, nil
	}
	if registry == nil {
		return nil, errdefs.Newf(errdefs.ErrNotRegistered,
			"body document: inline node needs serializer %q but no registry is available", serializerName)
	}
	serializer, err := registry.Serializer(serializerName)
	if err != nil {
		return nil, err
	}
	return serializer.Deserialize(&Envelope{
		Data:            data,
		ContentType:     contentType,
		ContentEncoding: contentEncoding,
	})
}

// EncodeBody marshals a body document to JSON. Convenience for unpackers
// that store bodies as opaque payloads.
func EncodeBody(doc any) ([]byte, error) {
	data, err := json.Marshal(doc)
	if err != nil {
		return nil, errdefs.Newf(errdefs.ErrInvalidParameter, "encode body document: %w", err)
	}
	return data, nil
}

// DecodeBody unmarshals a JSON body document.
func DecodeBody(data []byte) (any, error) {
	var doc any
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, errdefs.Newf(errdefs.ErrInvalidParameter, "decode body document: %w", err)
	}
	return doc, nil
}
