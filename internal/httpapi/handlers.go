package httpapi

import (
	"net/http"

	"facturapos/backend/internal/domain"
)

func (a *API) handleListProducts(w http.ResponseWriter, r *http.Request) {
	products, err := a.catalog.ListProducts(r.Context())
	if err != nil {
		a.fail(w, r, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, orEmpty(products))
}

func (a *API) handleGetProduct(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	product, err := a.catalog.GetProduct(r.Context(), id)
	if err != nil {
		a.fail(w, r, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, product)
}

func (a *API) handleCreateProduct(w http.ResponseWriter, r *http.Request) {
	var req domain.ProductRequest
	if err := a.decodeForm(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	id, err := a.catalog.CreateProduct(r.Context(), req)
	if err != nil {
		a.fail(w, r, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, domain.CreatedResponse{Success: true, ID: id})
}

func (a *API) handleUpdateProduct(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	var req domain.ProductRequest
	if err := a.decodeForm(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if err := a.catalog.UpdateProduct(r.Context(), id, req); err != nil {
		a.fail(w, r, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, domain.SuccessResponse{Success: true})
}

func (a *API) handleDeleteProduct(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if err := a.catalog.DeleteProduct(r.Context(), id); err != nil {
		a.fail(w, r, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, domain.SuccessResponse{Success: true})
}

func (a *API) handleListCustomers(w http.ResponseWriter, r *http.Request) {
	customers, err := a.catalog.ListCustomers(r.Context())
	if err != nil {
		a.fail(w, r, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, orEmpty(customers))
}

func (a *API) handleGetCustomer(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	customer, err := a.catalog.GetCustomer(r.Context(), id)
	if err != nil {
		a.fail(w, r, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, customer)
}

func (a *API) handleCreateCustomer(w http.ResponseWriter, r *http.Request) {
	var req domain.CustomerRequest
	if err := a.decodeForm(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	id, err := a.catalog.CreateCustomer(r.Context(), req)
	if err != nil {
		a.fail(w, r, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, domain.CreatedResponse{Success: true, ID: id})
}

func (a *API) handleUpdateCustomer(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	var req domain.CustomerRequest
	if err := a.decodeForm(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if err := a.catalog.UpdateCustomer(r.Context(), id, req); err != nil {
		a.fail(w, r, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, domain.SuccessResponse{Success: true})
}

func (a *API) handleDeleteCustomer(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if err := a.catalog.DeleteCustomer(r.Context(), id); err != nil {
		a.fail(w, r, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, domain.SuccessResponse{Success: true})
}

func (a *API) handleCreateInvoice(w http.ResponseWriter, r *http.Request) {
	var req domain.CreateInvoiceRequest
	if err := a.decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	resp, err := a.sales.CreateInvoice(r.Context(), req)
	if err != nil {
		a.fail(w, r, saleStatusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (a *API) handleListInvoices(w http.ResponseWriter, r *http.Request) {
	invoices, err := a.sales.ListInvoices(r.Context())
	if err != nil {
		a.fail(w, r, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, orEmpty(invoices))
}

func (a *API) handleGetInvoice(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	detail, err := a.sales.GetInvoice(r.Context(), id)
	if err != nil {
		a.fail(w, r, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, detail)
}

func (a *API) handleSalesByDate(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	rows, err := a.reports.SalesByDate(r.Context(), q.Get("desde"), q.Get("hasta"))
	if err != nil {
		a.fail(w, r, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, orEmpty(rows))
}

func (a *API) handleTopProducts(w http.ResponseWriter, r *http.Request) {
	rows, err := a.reports.TopProducts(r.Context())
	if err != nil {
		a.fail(w, r, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, orEmpty(rows))
}

// orEmpty keeps empty collections encoding as [] rather than null.
func orEmpty[T any](rows []T) []T {
	if rows == nil {
		return []T{}
	}
	return rows
}
