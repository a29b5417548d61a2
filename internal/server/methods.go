package server

// Method represents a JSON-RPC method exposed to the host
type Method struct {
	Name         string                 `json:"name"`
	Description  string                 `json:"description"`
	ParamsSchema map[string]interface{} `json:"paramsSchema"`
}

func stringProp(description string) map[string]interface{} {
	return map[string]interface{}{
		"type":        "string",
		"description": description,
	}
}

func objectSchema(properties map[string]interface{}, required ...string) map[string]interface{} {
	schema := map[string]interface{}{
		"type":       "object",
		"properties": properties,
	}
	if len(required) > 0 {
		schema["required"] = required
	}
	return schema
}

// MethodDefinitions returns every method the server answers besides the
// protocol handshake.
func MethodDefinitions() []Method {
	return []Method{
		// Views
		{
			Name:        "view/create",
			Description: "Create an image view. Lifecycle events for the view arrive as view/event notifications; with render set, decoded images arrive as view/image notifications.",
			ParamsSchema: objectSchema(map[string]interface{}{
				"viewId": stringProp("Host-chosen identifier of the view"),
				"render": map[string]interface{}{
					"type":        "boolean",
					"description": "Send placeholder, result, error and fallback images as base64 PNG",
					"default":     false,
				},
			}, "viewId"),
		},
		{
			Name:        "view/update",
			Description: "Merge a props fragment into the view's configuration. A changed configuration cancels the in-flight load and starts a new one.",
			ParamsSchema: objectSchema(map[string]interface{}{
				"viewId": stringProp("Identifier of an existing view"),
				"props": map[string]interface{}{
					"type":        "object",
					"description": "Changed props: source, transforms, resizeMode, scale, crossfade, size, placeholder, error, fallback, memoryCacheKey, placeholderMemoryCacheKey, videoFrameMilis, videoFrameMicro",
				},
			}, "viewId", "props"),
		},
		{
			Name:         "view/drop",
			Description:  "Destroy a view, cancelling its in-flight load. Dropping an unknown view is a no-op.",
			ParamsSchema: objectSchema(map[string]interface{}{"viewId": stringProp("Identifier of the view")}, "viewId"),
		},

		// Loader
		{
			Name:        "loader/setOptions",
			Description: "Replace the process-wide loader defaults. Options not given fall back to the loader's base values.",
			ParamsSchema: objectSchema(map[string]interface{}{
				"options": map[string]interface{}{
					"type":        "object",
					"description": "crossfade, placeholder, error, fallback, diskCachePolicy, memoryCachePolicy, networkCachePolicy, addLastModifiedToFileCacheKey and engine tuning hints",
				},
			}, "options"),
		},
		{
			Name:        "loader/prefetch",
			Description: "Load sources into a cache tier without a view.",
			ParamsSchema: objectSchema(map[string]interface{}{
				"sources": map[string]interface{}{
					"type":        "array",
					"items":       map[string]interface{}{"type": "string"},
					"description": "Source URIs",
				},
				"loadTo": map[string]interface{}{
					"type": "string",
					"enum": []string{"DISK", "MEMORY"},
				},
			}, "sources", "loadTo"),
		},

		// Cache
		{
			Name:         "cache/clearAll",
			Description:  "Clear every cache tier whose default policy is not DISABLED.",
			ParamsSchema: objectSchema(map[string]interface{}{}),
		},
		{
			Name:         "cache/clearMemory",
			Description:  "Clear the memory cache.",
			ParamsSchema: objectSchema(map[string]interface{}{}),
		},
		{
			Name:         "cache/clearDisk",
			Description:  "Clear the disk cache.",
			ParamsSchema: objectSchema(map[string]interface{}{}),
		},
		{
			Name:         "cache/createKey",
			Description:  "Build a simple memory cache key usable as the memoryCacheKey or placeholderMemoryCacheKey prop.",
			ParamsSchema: objectSchema(map[string]interface{}{"value": stringProp("Key value")}, "value"),
		},
	}
}
