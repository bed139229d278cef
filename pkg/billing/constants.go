package billing

const (
	operationGenerateInvoice = "generate_invoice"
	operationRegisterPayment = "register_payment"
	operationCheckOut        = "check_out"
	operationGatewayCheckout = "gateway_checkout"
	operationApplySnapshot   = "apply_gateway_snapshot"
	operationRegisterAdjust  = "register_adjustment"
	operationConfirmAdjust   = "confirm_adjustment"
	operationReverseMovement = "reverse_movement"
	operationCancelInvoice   = "cancel_invoice"

	operationStatusOK    = "ok"
	operationStatusError = "error"
	operationStatusNoop  = "noop"

	descriptionStayCharge   = "stay charge"
	descriptionPaymentLabel = "payment received"
)
