package simulator

import (
	"fmt"
)

const (
	TopicOrderPlaced      = "order_placed_events"
	TopicOrderPreparation = "order_preparation_events"
	TopicDroneDispatch    = "drone_dispatch_events"
	TopicOrderDelivery    = "order_delivery_events"
	TopicDroneRelease     = "drone_release_events"
	TopicDroneCharged     = "drone_charged_events"
	TopicOrderAborted     = "order_aborted_events"
)

// Topics lists every topic a run publishes to.
var Topics = []string{
	TopicOrderPlaced,
	TopicOrderPreparation,
	TopicDroneDispatch,
	TopicOrderDelivery,
	TopicDroneRelease,
	TopicDroneCharged,
	TopicOrderAborted,
}

// Every record carries the run id, its event type and the simulated time in
// minutes since the start of the run. Records are flat so the same struct
// serves as JSON message and parquet row.

// OrderPlacedEvent is published when an order arrives.
type OrderPlacedEvent struct {
	RunID     string  `json:"run_id" parquet:"name=run_id,type=BYTE_ARRAY,convertedtype=UTF8"`
	EventType string  `json:"event_type" parquet:"name=event_type,type=BYTE_ARRAY,convertedtype=UTF8"`
	SimTime   float64 `json:"sim_time" parquet:"name=sim_time,type=DOUBLE"`
	OrderID   int64   `json:"order_id" parquet:"name=order_id,type=INT64"`
	Customer  string  `json:"customer" parquet:"name=customer,type=BYTE_ARRAY,convertedtype=UTF8"`
	Value     float64 `json:"value" parquet:"name=value,type=DOUBLE"`
	X         float64 `json:"x" parquet:"name=x,type=DOUBLE"`
	Y         float64 `json:"y" parquet:"name=y,type=DOUBLE"`
	Distance  float64 `json:"distance" parquet:"name=distance,type=DOUBLE"`
	PrepTime  float64 `json:"prep_time" parquet:"name=prep_time,type=DOUBLE"`
}

// OrderPreparationEvent is published when a chef finishes an order.
type OrderPreparationEvent struct {
	RunID         string  `json:"run_id" parquet:"name=run_id,type=BYTE_ARRAY,convertedtype=UTF8"`
	EventType     string  `json:"event_type" parquet:"name=event_type,type=BYTE_ARRAY,convertedtype=UTF8"`
	SimTime       float64 `json:"sim_time" parquet:"name=sim_time,type=DOUBLE"`
	OrderID       int64   `json:"order_id" parquet:"name=order_id,type=INT64"`
	Status        string  `json:"status" parquet:"name=status,type=BYTE_ARRAY,convertedtype=UTF8"`
	PrepStartTime float64 `json:"prep_start_time" parquet:"name=prep_start_time,type=DOUBLE"`
	PrepDoneTime  float64 `json:"prep_done_time" parquet:"name=prep_done_time,type=DOUBLE"`
	ChefWait      float64 `json:"chef_wait" parquet:"name=chef_wait,type=DOUBLE"`
}

// DroneDispatchEvent is published when an order gets its drone.
type DroneDispatchEvent struct {
	RunID     string  `json:"run_id" parquet:"name=run_id,type=BYTE_ARRAY,convertedtype=UTF8"`
	EventType string  `json:"event_type" parquet:"name=event_type,type=BYTE_ARRAY,convertedtype=UTF8"`
	SimTime   float64 `json:"sim_time" parquet:"name=sim_time,type=DOUBLE"`
	OrderID   int64   `json:"order_id" parquet:"name=order_id,type=INT64"`
	DroneID   int64   `json:"drone_id" parquet:"name=drone_id,type=INT64"`
	Status    string  `json:"status" parquet:"name=status,type=BYTE_ARRAY,convertedtype=UTF8"`
	DroneWait float64 `json:"drone_wait" parquet:"name=drone_wait,type=DOUBLE"`
	Battery   float64 `json:"battery" parquet:"name=battery,type=DOUBLE"`
}

// OrderDeliveryEvent is published when the drone lands at the customer.
type OrderDeliveryEvent struct {
	RunID        string  `json:"run_id" parquet:"name=run_id,type=BYTE_ARRAY,convertedtype=UTF8"`
	EventType    string  `json:"event_type" parquet:"name=event_type,type=BYTE_ARRAY,convertedtype=UTF8"`
	SimTime      float64 `json:"sim_time" parquet:"name=sim_time,type=DOUBLE"`
	OrderID      int64   `json:"order_id" parquet:"name=order_id,type=INT64"`
	DroneID      int64   `json:"drone_id" parquet:"name=drone_id,type=INT64"`
	Status       string  `json:"status" parquet:"name=status,type=BYTE_ARRAY,convertedtype=UTF8"`
	DeliveryTime float64 `json:"delivery_time" parquet:"name=delivery_time,type=DOUBLE"`
	Distance     float64 `json:"distance" parquet:"name=distance,type=DOUBLE"`
}

// DroneReleaseEvent is published when a drone is back at the kitchen.
type DroneReleaseEvent struct {
	RunID     string  `json:"run_id" parquet:"name=run_id,type=BYTE_ARRAY,convertedtype=UTF8"`
	EventType string  `json:"event_type" parquet:"name=event_type,type=BYTE_ARRAY,convertedtype=UTF8"`
	SimTime   float64 `json:"sim_time" parquet:"name=sim_time,type=DOUBLE"`
	OrderID   int64   `json:"order_id" parquet:"name=order_id,type=INT64"`
	DroneID   int64   `json:"drone_id" parquet:"name=drone_id,type=INT64"`
	Battery   float64 `json:"battery" parquet:"name=battery,type=DOUBLE"`
	RoundTrip float64 `json:"round_trip" parquet:"name=round_trip,type=DOUBLE"`
}

// DroneChargedEvent is published when a drone completes a charge.
type DroneChargedEvent struct {
	RunID     string  `json:"run_id" parquet:"name=run_id,type=BYTE_ARRAY,convertedtype=UTF8"`
	EventType string  `json:"event_type" parquet:"name=event_type,type=BYTE_ARRAY,convertedtype=UTF8"`
	SimTime   float64 `json:"sim_time" parquet:"name=sim_time,type=DOUBLE"`
	DroneID   int64   `json:"drone_id" parquet:"name=drone_id,type=INT64"`
	Trips     int64   `json:"trips" parquet:"name=trips,type=INT64"`
}

// OrderAbortedEvent is published when an order cannot be fulfilled.
type OrderAbortedEvent struct {
	RunID     string  `json:"run_id" parquet:"name=run_id,type=BYTE_ARRAY,convertedtype=UTF8"`
	EventType string  `json:"event_type" parquet:"name=event_type,type=BYTE_ARRAY,convertedtype=UTF8"`
	SimTime   float64 `json:"sim_time" parquet:"name=sim_time,type=DOUBLE"`
	OrderID   int64   `json:"order_id" parquet:"name=order_id,type=INT64"`
	Reason    string  `json:"reason" parquet:"name=reason,type=BYTE_ARRAY,convertedtype=UTF8"`
}

// newRecord returns an empty record of the type published on topic, for
// decoding messages back into their schema.
func newRecord(topic string) (interface{}, error) {
	switch topic {
	case TopicOrderPlaced:
		return new(OrderPlacedEvent), nil
	case TopicOrderPreparation:
		return new(OrderPreparationEvent), nil
	case TopicDroneDispatch:
		return new(DroneDispatchEvent), nil
	case TopicOrderDelivery:
		return new(OrderDeliveryEvent), nil
	case TopicDroneRelease:
		return new(DroneReleaseEvent), nil
	case TopicDroneCharged:
		return new(DroneChargedEvent), nil
	case TopicOrderAborted:
		return new(OrderAbortedEvent), nil
	}
	return nil, fmt.Errorf("unknown event type: %s", topic)
}
