package tms

// StopPayload is one entry of an order's stop list.
type StopPayload struct {
	Type             string `json:"__type"`
	Name             string `json:"__name"`
	CompanyID        string `json:"company_id"`
	LocationID       string `json:"location_id"`
	SchedArriveEarly string `json:"sched_arrive_early"`
	SchedArriveLate  string `json:"sched_arrive_late,omitempty"`
	StopType         string `json:"stop_type"`
}

// OrderPayload is the body of PUT /orders/create.
type OrderPayload struct {
	Type             string        `json:"__type"`
	CompanyID        string        `json:"company_id"`
	BLNum            string        `json:"blnum"`
	ConsigneeRefNo   string        `json:"consignee_refno"`
	CustOrderNo      string        `json:"cust_order_no"`
	CollectionMethod string        `json:"collection_method"`
	CustomerID       string        `json:"customer_id"`
	OrderedDate      string        `json:"ordered_date"`
	OrderedMethod    string        `json:"ordered_method"`
	RevenueCodeID    string        `json:"revenue_code_id"`
	CommodityID      string        `json:"commodity_id"`
	Commodity        string        `json:"commodity"`
	OperationsUser   string        `json:"operations_user"`
	EquipmentTypeID  string        `json:"equipment_type_id"`
	Stops            []StopPayload `json:"stops"`
}

// CreatedOrder is the part of the create response the workflow needs.
type CreatedOrder struct {
	ID              string `json:"id"`
	BLNum           string `json:"blnum"`
	ConsigneeRefNo  string `json:"consignee_refno"`
	CustomerID      string `json:"customer_id"`
	ShipperStopID   string `json:"shipper_stop_id"`
	ConsigneeStopID string `json:"consignee_stop_id"`
}
