package kafka

import (
	"github.com/segmentio/kafka-go"
)

const (
	HeaderEventType   = "event-type"
	HeaderContentType = "content-type"

	contentTypeProto = "application/x-protobuf"
)

// Headers is an otel TextMapCarrier over kafka message headers. Set replaces
// an existing key so a re-injected trace context never duplicates.
type Headers []kafka.Header

func (h Headers) Get(k string) string {
	for _, x := range h {
		if x.Key == k {
			return string(x.Value)
		}
	}
	return ""
}

func (h *Headers) Set(k, v string) {
	for i := range *h {
		if (*h)[i].Key == k {
			(*h)[i].Value = []byte(v)
			return
		}
	}
	*h = append(*h, kafka.Header{Key: k, Value: []byte(v)})
}

func (h Headers) Keys() []string {
	ks := make([]string, 0, len(h))
	for _, x := range h {
		ks = append(ks, x.Key)
	}
	return ks
}
