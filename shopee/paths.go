package shopee

const DefaultBaseURL = "https://partner.shopeemobile.com"

const (
	PathAuthPartner    = "/api/v2/shop/auth_partner"
	PathTokenGet       = "/api/v2/auth/token/get"
	PathAccessTokenGet = "/api/v2/auth/access_token/get"
	PathOrderList      = "/api/v2/order/get_order_list"
	PathOrderDetail    = "/api/v2/order/get_order_detail"
	PathItemList       = "/api/v2/product/get_item_list"
	PathItemBaseInfo   = "/api/v2/product/get_item_base_info"
	PathModelList      = "/api/v2/product/get_model_list"
	PathUpdateStock    = "/api/v2/product/update_stock"
	PathUpdatePrice    = "/api/v2/product/update_price"
	PathReturnList     = "/api/v2/returns/get_return_list"
)

// MaxDetailBatch is the upstream limit of ids per detail call.
const MaxDetailBatch = 50

const orderOptionalFields = "buyer_username,item_list,total_amount,shipping_carrier,payment_method"

const (
	bucketAuth    = "auth"
	bucketOrder   = "order"
	bucketProduct = "product"
	bucketReturns = "returns"
)
