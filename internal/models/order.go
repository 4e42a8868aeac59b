package models

// Order is one customer order and the timestamps stamped on it as it moves
// through the kitchen and the fleet. All times are simulated minutes.
type Order struct {
	ID       int     `json:"id"`
	Customer string  `json:"customer"`
	Value    float64 `json:"value"`
	Location Point   `json:"location"`
	Distance float64 `json:"distance"` // km from the kitchen
	PrepTime float64 `json:"prep_time"`
	Status   string  `json:"status"`
	DroneID  int     `json:"drone_id"`

	ArrivalTime       float64 `json:"arrival_time"`
	PrepStartTime     float64 `json:"prep_start_time"`
	PrepDoneTime      float64 `json:"prep_done_time"`
	DroneRequestTime  float64 `json:"drone_request_time"`
	DroneReadyTime    float64 `json:"drone_ready_time"`
	DeliveredTime     float64 `json:"delivered_time"`
	DroneReleaseTime  float64 `json:"drone_release_time"`
	BatteryAtDispatch float64 `json:"battery_at_dispatch"`
	BatteryAtReturn   float64 `json:"battery_at_return"`
}

// ChefWait is the time the order queued for a chef.
func (o *Order) ChefWait() float64 {
	return o.PrepStartTime - o.ArrivalTime
}

// DroneWait is the time between asking for a drone and getting one.
func (o *Order) DroneWait() float64 {
	return o.DroneReadyTime - o.DroneRequestTime
}

// DeliveryTime is the time from arrival to hand-off at the customer.
func (o *Order) DeliveryTime() float64 {
	return o.DeliveredTime - o.ArrivalTime
}

// RoundTrip is how long the drone was held by this order.
func (o *Order) RoundTrip() float64 {
	return o.DroneReleaseTime - o.DroneReadyTime
}

// TimestampsOrdered checks the lifecycle timestamps never run backwards.
func (o *Order) TimestampsOrdered() bool {
	chain := []float64{
		o.ArrivalTime,
		o.PrepStartTime,
		o.PrepDoneTime,
		o.DroneRequestTime,
		o.DroneReadyTime,
		o.DeliveredTime,
		o.DroneReleaseTime,
	}
	for i := 1; i < len(chain); i++ {
		if chain[i] < chain[i-1] {
			return false
		}
	}
	return true
}

type OrderMetrics struct {
	TotalOrders     int
	CompletedOrders int
	AbortedOrders   int
	TotalRevenue    float64
	AvgOrderValue   float64
	AvgDeliveryTime float64
}
