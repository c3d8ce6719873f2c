package domain

type MenuItem struct {
	ID    string
	Name  string
	Price int64
}

type Restaurant struct {
	ID            string
	UserID        string
	Name          string
	DeliveryPrice int64
	MenuItems     []MenuItem
}

func (r Restaurant) FindMenuItem(id string) (MenuItem, bool) {
	for _, item := range r.MenuItems {
		if item.ID == id {
			return item, true
		}
	}
	return MenuItem{}, false
}
