package metric

import (
	jsoniter "github.com/json-iterator/go"
	metrics "github.com/rcrowley/go-metrics"
)

// MetricItem - 一个独立的metric模块对应一个MetricItem
type MetricItem interface {
	JSONString() string
}

// registryItem exposes a whole go-metrics registry as one item.
type registryItem struct {
	registry metrics.Registry
}

// RegistryItem renders every metric of r, keyed by name.
func RegistryItem(r metrics.Registry) MetricItem {
	return &registryItem{registry: r}
}

func (item *registryItem) JSONString() string {
	s, err := jsoniter.MarshalToString(item.registry.GetAll())
	if err != nil {
		return "{}"
	}
	return s
}
